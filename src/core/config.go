// Package core contains the configuration shared by the rest of revcache.
package core

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/please-build/gcfg"

	"github.com/thought-machine/revcache/src/cli"
	"github.com/thought-machine/revcache/src/cli/logging"
	"github.com/thought-machine/revcache/src/fs"
)

var log = logging.Log

// ConfigFileName is the file name for the typical project config - this is normally checked in.
const ConfigFileName = ".revcacheconfig"

// LocalConfigFileName is the file name for the local config - this is not normally checked in
// and is used to override settings on the local machine.
const LocalConfigFileName = ".revcacheconfig.local"

// A CacheType selects the kind of artifact a cache holds, which determines the suffix of the
// files in it.
type CacheType string

const (
	// CondaCache holds conda package archives.
	CondaCache CacheType = "conda"
	// WheelCache holds wheelhouse directories, one per revision.
	WheelCache CacheType = "wheel"
	// CustomCache holds whatever the configured build command produces; its suffix comes
	// solely from cache.extension.
	CustomCache CacheType = "custom"
)

var cacheExtensions = map[CacheType]string{
	CondaCache:  ".tar.bz2",
	WheelCache:  "",
	CustomCache: "",
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (t *CacheType) UnmarshalText(text []byte) error {
	ct := CacheType(strings.ToLower(strings.TrimSpace(string(text))))
	if _, present := cacheExtensions[ct]; !present {
		return fmt.Errorf("Unknown cache type %s", text)
	}
	*t = ct
	return nil
}

// An EvictionType selects how entries are chosen for eviction from a full cache.
type EvictionType string

const (
	// OldestFirst evicts the entries created longest ago.
	OldestFirst EvictionType = "oldest"
	// LeastRecentlyUsed evicts the entries accessed longest ago.
	LeastRecentlyUsed EvictionType = "lru"
)

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (t *EvictionType) UnmarshalText(text []byte) error {
	switch et := EvictionType(strings.ToLower(strings.TrimSpace(string(text)))); et {
	case OldestFirst, LeastRecentlyUsed:
		*t = et
		return nil
	}
	return fmt.Errorf("Unknown eviction type %s; must be oldest or lru", text)
}

// A Configuration contains all the settings that can be configured about revcache.
// This is parsed from .revcacheconfig etc; we use a struct because gcfg needs one.
type Configuration struct {
	Cache struct {
		Dir       string       `help:"Directory holding cached build artifacts. Defaults to ~/.cache/revcache."`
		Capacity  int          `help:"Maximum number of artifacts to retain. 0 disables caching entirely."`
		Type      CacheType    `help:"Kind of artifact being cached; one of conda, wheel or custom."`
		Extension string       `help:"Suffix of cached artifact files. Overrides the default for the cache type."`
		Eviction  EvictionType `help:"How to choose artifacts to evict when the cache is full; oldest (the default) or lru."`
	}
	Build struct {
		Command       string       `help:"Command to build a revision. It receives the revision in $REVISION."`
		OutputCommand string       `help:"Command that prints the path of the built artifact. If unset the last line printed by the build command is used."`
		CleanCommand  string       `help:"Command run after a build fails or is interrupted, eg. to clear lock files."`
		Dir           string       `help:"Directory to run build commands in. Defaults to the current directory."`
		Timeout       cli.Duration `help:"Timeout for each build command. 0 means no timeout."`
	}
	Machine struct {
		File string `help:"File recording descriptions of the machines benchmarks have run on."`
	}
	Metrics struct {
		PushGatewayURL string       `help:"URL of a Prometheus pushgateway to send cache metrics to at exit."`
		JobName        string       `help:"Job name to push metrics under."`
		Timeout        cli.Duration `help:"Timeout for sending metrics to the pushgateway."`
	}
}

// DefaultConfiguration returns the default configuration, before any files are read.
func DefaultConfiguration() *Configuration {
	config := Configuration{}
	config.Cache.Dir = "~/.cache/revcache"
	config.Cache.Type = CondaCache
	config.Cache.Eviction = OldestFirst
	config.Machine.File = "~/.revcache-machine.json"
	config.Metrics.JobName = "revcache"
	config.Metrics.Timeout = cli.Duration(5 * time.Second)
	return &config
}

func readConfigFile(config *Configuration, filename string) error {
	if err := gcfg.ReadFileInto(config, filename); err != nil && os.IsNotExist(err) {
		return nil // It's not an error to not have the file at all.
	} else if err != nil {
		return err
	}
	log.Debug("Read config from %s", filename)
	return nil
}

// ReadConfigFiles reads config files from the given locations, in order.
// Values are filled in by defaults initially and then overridden by each file in turn.
func ReadConfigFiles(filenames []string) (*Configuration, error) {
	config := DefaultConfiguration()
	for _, filename := range filenames {
		if err := readConfigFile(config, filename); err != nil {
			return config, err
		}
	}
	return config, config.normalise()
}

// normalise expands paths and validates the configuration after it's been read.
func (config *Configuration) normalise() error {
	config.Cache.Dir = fs.ExpandHomePath(config.Cache.Dir)
	config.Machine.File = fs.ExpandHomePath(config.Machine.File)
	if config.Build.Dir != "" {
		config.Build.Dir = fs.ExpandHomePath(config.Build.Dir)
	}
	if config.Cache.Capacity < 0 {
		return fmt.Errorf("Invalid cache capacity %d; must be non-negative", config.Cache.Capacity)
	} else if _, present := cacheExtensions[config.Cache.Type]; !present {
		return fmt.Errorf("Unknown cache type %s", config.Cache.Type)
	} else if config.Cache.Eviction != OldestFirst && config.Cache.Eviction != LeastRecentlyUsed {
		return fmt.Errorf("Unknown eviction type %s", config.Cache.Eviction)
	} else if config.Cache.Capacity > 0 && config.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set when caching is enabled")
	}
	return nil
}

// ArtifactExtension returns the suffix that cached artifacts are stored with.
func (config *Configuration) ArtifactExtension() string {
	if config.Cache.Extension != "" {
		return config.Cache.Extension
	}
	return cacheExtensions[config.Cache.Type]
}

// ApplyOverrides applies a set of overrides to the config.
// The keys of the given map are dot notation for the config setting.
func (config *Configuration) ApplyOverrides(overrides map[string]string) error {
	match := func(s1 string) func(string) bool {
		return func(s2 string) bool {
			return strings.ToLower(s2) == s1
		}
	}
	elem := reflect.ValueOf(config).Elem()
	for k, v := range overrides {
		split := strings.Split(strings.ToLower(k), ".")
		if len(split) != 2 {
			return fmt.Errorf("Bad option format: %s", k)
		}
		field := elem.FieldByNameFunc(match(split[0]))
		if !field.IsValid() {
			return fmt.Errorf("Unknown config field: %s", split[0])
		} else if field.Kind() != reflect.Struct {
			return fmt.Errorf("Unsettable config field: %s", split[0])
		}
		field = field.FieldByNameFunc(match(split[1]))
		if !field.IsValid() {
			return fmt.Errorf("Unknown config field: %s", split[1])
		}
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("Invalid value for %s: %s", k, err)
			}
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(v)
		case reflect.Int:
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("Invalid value for an integer field: %s", v)
			}
			field.SetInt(int64(i))
		default:
			return fmt.Errorf("Can't override config field %s", k)
		}
	}
	return config.normalise()
}
