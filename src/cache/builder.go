package cache

import "context"

// A Builder produces the artifact for a revision.
// On success it returns the path to a file or directory that the cache then takes ownership
// of; it's free to move or delete it. Builders are responsible for cleaning up after
// themselves when they fail.
type Builder interface {
	Build(ctx context.Context, key string) (string, error)
}

// A BuilderFunc adapts an ordinary function to a Builder.
type BuilderFunc func(ctx context.Context, key string) (string, error)

// Build implements the Builder interface.
func (f BuilderFunc) Build(ctx context.Context, key string) (string, error) {
	return f(ctx, key)
}
