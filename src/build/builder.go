// Package build implements building revisions by running configured commands.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/google/shlex"
	"gopkg.in/op/go-logging.v1"

	"github.com/thought-machine/revcache/src/core"
	"github.com/thought-machine/revcache/src/fs"
	"github.com/thought-machine/revcache/src/process"
)

var log = logging.MustGetLogger("build")

// cleanTimeout bounds the clean command when the build was interrupted and there's no
// context left to run it under.
const cleanTimeout = 2 * time.Minute

// A CommandBuilder builds revisions by running an external command, for example conda-build.
type CommandBuilder struct {
	command, outputCommand, cleanCommand []string
	dir                                  string
	timeout                              time.Duration
	executor                             *process.Executor
	showOutput                           bool
}

// NewCommandBuilder returns a new CommandBuilder from the [build] section of the given config.
// If showOutput is true the commands' output is echoed to stderr as they run.
func NewCommandBuilder(config *core.Configuration, executor *process.Executor, showOutput bool) (*CommandBuilder, error) {
	if config.Build.Command == "" {
		return nil, fmt.Errorf("No build command configured; set build.command in %s", core.ConfigFileName)
	}
	b := &CommandBuilder{
		timeout:    time.Duration(config.Build.Timeout),
		executor:   executor,
		showOutput: showOutput,
	}
	var err error
	if b.command, err = splitCommand("command", config.Build.Command); err != nil {
		return nil, err
	} else if b.outputCommand, err = splitCommand("outputcommand", config.Build.OutputCommand); err != nil {
		return nil, err
	} else if b.cleanCommand, err = splitCommand("cleancommand", config.Build.CleanCommand); err != nil {
		return nil, err
	}
	dir := config.Build.Dir
	if dir == "" {
		dir = "."
	}
	if b.dir, err = filepath.Abs(dir); err != nil {
		return nil, err
	}
	return b, nil
}

func splitCommand(name, command string) ([]string, error) {
	if command == "" {
		return nil, nil
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("Invalid build.%s %q: %w", name, command, err)
	}
	return argv, nil
}

// Build implements the cache.Builder interface.
// It runs the build command for the given revision and returns the path to what it built.
// If the build fails or is interrupted the clean command, if any, is run before returning.
func (b *CommandBuilder) Build(ctx context.Context, revision string) (string, error) {
	env := b.env(revision)
	out, combined, err := b.run(ctx, b.command, revision, env)
	if err != nil {
		b.clean(ctx, revision, env)
		return "", fmt.Errorf("%s: %w\n%s", b.command[0], err, strings.TrimSpace(string(combined)))
	}
	if b.outputCommand != nil {
		if out, combined, err = b.run(ctx, b.outputCommand, revision, env); err != nil {
			return "", fmt.Errorf("%s: %w\n%s", b.outputCommand[0], err, strings.TrimSpace(string(combined)))
		}
	}
	path := lastLine(out)
	if path == "" {
		return "", fmt.Errorf("Build of %s didn't print the path of an artifact", revision)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(b.dir, path)
	}
	if !fs.PathExists(path) {
		return "", fmt.Errorf("Build of %s reported artifact %s, but it doesn't exist", revision, path)
	}
	log.Debug("Build of %s produced %s", revision, path)
	return path, nil
}

// run runs a single command with the revision substituted into its arguments.
func (b *CommandBuilder) run(ctx context.Context, command []string, revision string, env []string) ([]byte, []byte, error) {
	argv := make([]string, len(command))
	for i, arg := range command {
		argv[i] = expand(arg, revision, b.dir)
	}
	log.Debug("Running %s in %s", shellescape.QuoteCommand(argv), b.dir)
	return b.executor.Exec(ctx, b.dir, env, b.timeout, b.showOutput, argv)
}

// clean runs the clean command after a failed build. Failures are logged but otherwise ignored
// since the build error is more interesting.
func (b *CommandBuilder) clean(ctx context.Context, revision string, env []string) {
	if b.cleanCommand == nil {
		return
	}
	if ctx.Err() != nil {
		// The build was interrupted, but we still want to tidy up after it.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), cleanTimeout)
		defer cancel()
	}
	log.Info("Running clean command after failed build of %s", revision)
	if _, combined, err := b.run(ctx, b.cleanCommand, revision, env); err != nil {
		log.Warning("Clean command %s failed: %s\n%s", b.cleanCommand[0], err, combined)
	}
}

func (b *CommandBuilder) env(revision string) []string {
	return append(os.Environ(), "REVISION="+revision, "SOURCE_PATH="+b.dir)
}

// expand replaces $REVISION and $SOURCE_PATH in a command argument.
// Any other variables are left alone for the command itself to interpret.
func expand(arg, revision, dir string) string {
	return os.Expand(arg, func(name string) string {
		switch name {
		case "REVISION":
			return revision
		case "SOURCE_PATH":
			return dir
		}
		return "${" + name + "}"
	})
}

// lastLine returns the last non-empty line of some output.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
