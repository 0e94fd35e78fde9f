package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thought-machine/go-flags"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
	"gopkg.in/op/go-logging.v1"

	"github.com/thought-machine/revcache/src/build"
	"github.com/thought-machine/revcache/src/cache"
	"github.com/thought-machine/revcache/src/cli"
	"github.com/thought-machine/revcache/src/core"
	"github.com/thought-machine/revcache/src/fs"
	"github.com/thought-machine/revcache/src/machine"
	"github.com/thought-machine/revcache/src/metrics"
	"github.com/thought-machine/revcache/src/process"
)

var log = logging.MustGetLogger("revcache")

var opts struct {
	Usage string `usage:"revcache builds project revisions on demand, keeping a bounded number of the built artifacts so each is only built once."`

	Verbosity    cli.Verbosity     `short:"v" long:"verbosity" default:"notice" description:"Verbosity of output (error, warning, notice, info, debug)"`
	LogFile      string            `long:"log_file" description:"File to echo full logging output to"`
	LogFileLevel cli.Verbosity     `long:"log_file_level" default:"debug" description:"Log level for file output"`
	Config       []string          `short:"c" long:"config" description:"Config files to read. Defaults to .revcacheconfig and .revcacheconfig.local in the current directory."`
	Override     map[string]string `short:"o" long:"override" description:"Override config settings, e.g. -o cache.capacity:5"`
	Version      bool              `long:"version" description:"Print the version of revcache and exit"`

	Build struct {
		Jobs       int  `short:"j" long:"jobs" default:"1" description:"Number of revisions to request at once. Builds are still run one at a time."`
		ShowOutput bool `long:"show_output" description:"Show output of the build commands as they run"`
		Args       struct {
			Revisions cli.StdinStrings `positional-arg-name:"revisions" required:"true" description:"Revisions to build. Pass - to read them from stdin."`
		} `positional-args:"true" required:"true"`
	} `command:"build" description:"Builds revisions, or retrieves them from the cache, and prints the paths of their artifacts"`

	List struct {
	} `command:"list" alias:"ls" description:"Lists the artifacts currently in the cache, oldest first"`

	Remove struct {
		Args struct {
			Revisions cli.StdinStrings `positional-arg-name:"revisions" required:"true" description:"Revisions to remove. Pass - to read them from stdin."`
		} `positional-args:"true" required:"true"`
	} `command:"remove" alias:"rm" description:"Removes revisions from the cache"`

	Clean struct {
		Yes bool `short:"y" long:"yes" description:"Don't prompt for confirmation"`
	} `command:"clean" description:"Removes everything from the cache"`

	Machine struct {
		Show struct {
			Args struct {
				Name string `positional-arg-name:"name" description:"Name of the machine. Defaults to this host's name."`
			} `positional-args:"true"`
		} `command:"show" description:"Shows the recorded description of a machine"`
		Save struct {
			Machine string `long:"machine" description:"Name to record the machine under. Defaults to this host's name."`
			OS      string `long:"os" description:"Operating system description"`
			Arch    string `long:"arch" description:"CPU architecture"`
			CPU     string `long:"cpu" description:"CPU model"`
			NumCPU  int    `long:"num_cpu" description:"Number of CPU cores"`
			RAM     string `long:"ram" description:"Amount of memory"`
			GPU     string `long:"gpu" description:"GPU model"`
		} `command:"save" description:"Records a description of this machine. Anything not given is detected automatically."`
	} `command:"machine" description:"Shows or records descriptions of the machines benchmarks run on"`
}

// commands maps each subcommand to the function implementing it.
var commands = map[string]func(ctx context.Context, config *core.Configuration) error{
	"build": func(ctx context.Context, config *core.Configuration) error {
		revisions, err := opts.Build.Args.Revisions.Get()
		if err != nil {
			return err
		}
		c, registry, err := newCache(config)
		if err != nil {
			return err
		}
		defer pushMetrics(config, registry)
		builder, err := build.NewCommandBuilder(config, process.New(), opts.Build.ShowOutput)
		if err != nil {
			return err
		}
		return buildAll(ctx, c, builder, revisions, opts.Build.Jobs)
	},
	"list": func(ctx context.Context, config *core.Configuration) error {
		c, _, err := newCache(config)
		if err != nil {
			return err
		} else if !c.Enabled() {
			log.Warning("Caching is disabled; set cache.capacity to enable it")
			return nil
		}
		entries, err := c.Entries()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			size, err := fs.DiskUsage(entry.Path)
			if err != nil {
				log.Warning("Can't determine size of %s: %s", entry.Path, err)
			}
			cli.Printf("${BOLD_WHITE}%s${RESET}  %8s  created %s  ${GREY}last used %s${RESET}\n", entry.Key, humanize.Bytes(size), humanize.Time(entry.CreatedAt), humanize.Time(entry.AccessedAt))
		}
		log.Info("%d of %d artifacts in %s", len(entries), c.Capacity(), config.Cache.Dir)
		return nil
	},
	"remove": func(ctx context.Context, config *core.Configuration) error {
		revisions, err := opts.Remove.Args.Revisions.Get()
		if err != nil {
			return err
		}
		c, _, err := newCache(config)
		if err != nil {
			return err
		}
		for _, revision := range revisions {
			if err := c.Remove(revision); err != nil {
				return err
			}
			log.Info("Removed %s", revision)
		}
		return nil
	},
	"clean": func(ctx context.Context, config *core.Configuration) error {
		c, _, err := newCache(config)
		if err != nil || !c.Enabled() {
			return err
		}
		if !opts.Clean.Yes && cli.StdErrIsATerminal && !cli.PromptYN(fmt.Sprintf("Remove everything in %s", config.Cache.Dir), false) {
			return nil
		}
		return c.Clean()
	},
	"machine.show": func(ctx context.Context, config *core.Configuration) error {
		name, err := machineName(opts.Machine.Show.Args.Name)
		if err != nil {
			return err
		}
		collection := machine.NewCollection(config.Machine.File)
		d, err := collection.Load(name)
		if errors.Is(err, machine.ErrNotFound) {
			if names, err2 := collection.Names(); err2 == nil {
				return fmt.Errorf("%w%s", err, cli.PrettyPrintSuggestion(name, names, 4))
			}
		}
		if err != nil {
			return err
		}
		printMachine(name, d)
		return nil
	},
	"machine.save": func(ctx context.Context, config *core.Configuration) error {
		args := opts.Machine.Save
		name, err := machineName(args.Machine)
		if err != nil {
			return err
		}
		d := machine.Defaults()
		d.Machine = name
		set := func(dest *string, val string) {
			if val != "" {
				*dest = val
			}
		}
		set(&d.OS, args.OS)
		set(&d.Arch, args.Arch)
		set(&d.CPU, args.CPU)
		set(&d.RAM, args.RAM)
		set(&d.GPU, args.GPU)
		if args.NumCPU > 0 {
			d.NumCPU = args.NumCPU
		}
		collection := machine.NewCollection(config.Machine.File)
		if err := collection.Save(name, d); err != nil {
			return err
		}
		log.Notice("Recorded %s in %s", name, collection.Path())
		printMachine(name, d)
		return nil
	},
}

// buildAll builds a set of revisions and prints the path of each artifact as it completes.
// All revisions are attempted even if some fail.
func buildAll(ctx context.Context, c *cache.BuildCache, builder cache.Builder, revisions []string, jobs int) error {
	var g errgroup.Group
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	start := time.Now()
	failed := make([]bool, len(revisions))
	for i, revision := range revisions {
		i, revision := i, revision
		g.Go(func() error {
			path, err := c.GetOrBuild(ctx, revision, builder)
			if err != nil {
				log.Error("%s", err)
				failed[i] = true
				return nil
			}
			fmt.Printf("%s %s\n", revision, path)
			return nil
		})
	}
	g.Wait()
	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d of %d revisions failed to build", n, len(revisions))
	}
	log.Info("Completed %d revisions in %s", len(revisions), time.Since(start).Round(time.Millisecond))
	return nil
}

func newCache(config *core.Configuration) (*cache.BuildCache, *prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	c, err := cache.New(config, cache.WithRegisterer(registry))
	return c, registry, err
}

func pushMetrics(config *core.Configuration, registry *prometheus.Registry) {
	if err := metrics.New(config, registry).Push(); err != nil {
		log.Warning("%s", err)
	}
}

func machineName(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	return os.Hostname()
}

func printMachine(name string, d machine.Descriptor) {
	cli.Printf("${BOLD_WHITE}%s${RESET}\n", name)
	for _, field := range []struct{ k, v string }{
		{"os", d.OS},
		{"arch", d.Arch},
		{"cpu", d.CPU},
		{"num_cpu", fmt.Sprint(d.NumCPU)},
		{"ram", d.RAM},
		{"gpu", d.GPU},
	} {
		if field.v != "" {
			cli.Printf("  ${GREY}%-8s${RESET} %s\n", field.k, field.v)
		}
	}
}

// activeCommand returns the name of the currently active command, with subcommands joined by dots.
func activeCommand(parser *flags.Parser) string {
	var names []string
	for command := parser.Active; command != nil; command = command.Active {
		names = append(names, command.Name)
	}
	return strings.Join(names, ".")
}

func readConfig() (*core.Configuration, error) {
	files := opts.Config
	if len(files) == 0 {
		files = []string{core.ConfigFileName, core.LocalConfigFileName}
	}
	config, err := core.ReadConfigFiles(files)
	if err != nil {
		return nil, err
	}
	if len(opts.Override) > 0 {
		if err := config.ApplyOverrides(opts.Override); err != nil {
			return nil, err
		}
	}
	return config, nil
}

func main() {
	parser, _, err := cli.ParseFlags("revcache", &opts, os.Args)
	if opts.Version {
		fmt.Printf("revcache version %s\n", core.Version())
		os.Exit(0)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	if opts.LogFile != "" {
		if err := cli.InitFileLogging(opts.Verbosity, opts.LogFile, opts.LogFileLevel); err != nil {
			cli.InitLogging(opts.Verbosity)
			log.Warning("Failed to open log file: %s", err)
		}
	} else {
		cli.InitLogging(opts.Verbosity)
	}
	config, err := readConfig()
	if err != nil {
		log.Fatalf("Error reading config: %s", err)
	}
	command := activeCommand(parser)
	f, present := commands[command]
	if !present {
		log.Fatalf("Unknown command %s", command)
	}
	ctx, cancel := cli.InterruptContext(context.Background())
	err = f(ctx, config)
	cancel()
	cli.RunAtExit()
	if err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}
