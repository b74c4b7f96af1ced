// Command pickyappend loads relations from a fixture file and runs or
// explains queries over them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"gopkg.in/yaml.v2"

	"github.com/grafana/pickyappend/pkg/engine"
	util_log "github.com/grafana/pickyappend/pkg/util/log"
)

func main() {
	app := kingpin.New("pickyappend", "Run parameterized nested loop joins over partitioned relations.")

	g := &globalFlags{logConfig: util_log.NewConfig()}
	g.register(app)

	addRunCommand(app, g)
	addExplainCommand(app, g)
	addRelationsCommand(app, g)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

// globalFlags are shared by every command.
type globalFlags struct {
	logConfig util_log.Config

	fixture    *string
	configFile *string
	dataDir    *string
	skipLoad   *bool

	batchSize         *int
	batchSizeSet      bool
	enablePickyAppend *bool
	pickySet          bool
	cacheSize         *int
	cacheSizeSet      bool
}

func (g *globalFlags) register(app *kingpin.Application) {
	defaults := defaultConfig()

	app.Flag("log.level", "Only log messages with the given severity or above. One of: [debug, info, warn, error]").
		Default("info").SetValue(&g.logConfig.Level)
	app.Flag("log.format", "Output log messages in the given format. One of: [logfmt, json]").
		Default(util_log.FormatLogfmt).EnumVar(&g.logConfig.Format, util_log.FormatLogfmt, util_log.FormatJSON)

	g.fixture = app.Flag("fixture", "YAML file describing the relations and their rows.").Required().ExistingFile()
	g.configFile = app.Flag("config.file", "YAML file with executor configuration.").ExistingFile()
	g.dataDir = app.Flag("data-dir", "Directory storing relation data. Data is kept in memory if empty.").String()
	g.skipLoad = app.Flag("skip-load", "Do not write the rows of the fixture; the data directory already holds them.").Bool()

	g.batchSize = app.Flag("batch-size", "Maximum number of rows per record read from a relation.").
		Default(fmt.Sprint(defaults.BatchSize)).IsSetByUser(&g.batchSizeSet).Int()
	g.enablePickyAppend = app.Flag("enable-picky-append", "Prune the partitions probed by nested loop joins at every rescan.").
		Default(fmt.Sprint(defaults.EnablePickyAppend)).IsSetByUser(&g.pickySet).Bool()
	g.cacheSize = app.Flag("plan-state-cache-size", "Initial capacity of the partition state cache of PickyAppend nodes.").
		Default(fmt.Sprint(defaults.PlanStateCacheSize)).IsSetByUser(&g.cacheSizeSet).Int()
}

// defaultConfig returns the executor configuration with the defaults of its
// flags.
func defaultConfig() engine.ExecutorConfig {
	var cfg engine.ExecutorConfig
	cfg.RegisterFlagsWithPrefix("", flag.NewFlagSet("defaults", flag.PanicOnError))
	return cfg
}

// config returns the executor configuration: defaults, overridden by the
// config file, overridden by flags set on the command line.
func (g *globalFlags) config() (engine.ExecutorConfig, error) {
	cfg := defaultConfig()

	if *g.configFile != "" {
		data, err := os.ReadFile(*g.configFile)
		if err != nil {
			return cfg, err
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", *g.configFile, err)
		}
	}

	if g.batchSizeSet {
		cfg.BatchSize = *g.batchSize
	}
	if g.pickySet {
		cfg.EnablePickyAppend = *g.enablePickyAppend
	}
	if g.cacheSizeSet {
		cfg.PlanStateCacheSize = *g.cacheSize
	}
	return cfg, nil
}

func (g *globalFlags) logger() log.Logger {
	logger, err := util_log.New(os.Stderr, g.logConfig)
	if err != nil {
		exitWithErr(err)
	}
	return logger
}

func (g *globalFlags) bucket() (objstore.Bucket, error) {
	if *g.dataDir == "" {
		return objstore.NewInMemBucket(), nil
	}
	return filesystem.NewBucket(*g.dataDir)
}

// newEngine creates an engine and loads the fixture into it.
func (g *globalFlags) newEngine(ctx context.Context) *engine.Engine {
	cfg, err := g.config()
	if err != nil {
		exitWithErr(err)
	}
	bucket, err := g.bucket()
	if err != nil {
		exitWithErr(fmt.Errorf("failed to open data directory: %w", err))
	}

	e, err := engine.New(engine.Params{
		Logger: g.logger(),
		Config: cfg,
		Bucket: bucket,
	})
	if err != nil {
		exitWithErr(err)
	}

	data, err := os.ReadFile(*g.fixture)
	if err != nil {
		exitWithErr(err)
	}
	f, err := engine.ParseFixture(data)
	if err != nil {
		exitWithErr(err)
	}

	if *g.skipLoad {
		err = e.Register(f)
	} else {
		err = e.Load(ctx, f)
	}
	if err != nil {
		exitWithErr(fmt.Errorf("failed to load fixture: %w", err))
	}
	return e
}

func exitWithErr(err error) {
	color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
