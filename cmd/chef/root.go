package main

import (
	"fmt"
	"path/filepath"

	"github.com/benbjohnson/chef"
	"github.com/benbjohnson/chef/internal/config"
	"github.com/benbjohnson/chef/replay"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the base command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "chef",
		Short: "chef - high-level path exploration of interpreted guests",
		Long: `chef tracks the high-level execution of guest programs, builds their
control-flow graph and execution tree, and writes a test case for every path
that reaches new code.

Commands:
  replay      Replay a recorded exploration script
  explore     Enumerate and explore the paths of a Go function
  inspect     Dump a decoded exploration script
  version     Print version information

Use "chef [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Config file path")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Verbose logging")
	flags.StringVarP(&g.outputDir, "output", "o", "", "Output directory")
	flags.StringVar(&g.searcher, "searcher", "", "Pending path searcher (dfs, bfs, random, weighted)")
	flags.BoolVar(&g.stopOnError, "stop-on-error", false, "Terminate at the first error path")
	flags.BoolVar(&g.extraDetails, "extra-details", false, "Append distance details to test cases")

	cmd.AddCommand(
		newReplayCommand(g),
		newExploreCommand(g),
		newInspectCommand(g),
		newVersionCommand(),
	)
	return cmd
}

// globals holds the persistent flags and the resolved configuration.
type globals struct {
	configPath   string
	verbose      bool
	outputDir    string
	searcher     string
	stopOnError  bool
	extraDetails bool

	cfg *config.Config
}

// load resolves the configuration and applies flag overrides.
func (g *globals) load(cmd *cobra.Command) error {
	var err error
	if g.configPath != "" {
		g.cfg, err = config.LoadFromFile(g.configPath)
	} else {
		g.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		g.cfg.Verbose = g.verbose
	}
	if flags.Changed("output") {
		g.cfg.OutputDir = g.outputDir
	}
	if flags.Changed("searcher") {
		g.cfg.Searcher = config.SearcherType(g.searcher)
	}
	if flags.Changed("stop-on-error") {
		g.cfg.StopOnError = g.stopOnError
	}
	if flags.Changed("extra-details") {
		g.cfg.ExtraDetails = g.extraDetails
	}
	if err := g.cfg.Validate(); err != nil {
		return err
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	if g.cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// runScript replays script into a fresh session writing to the configured
// output directory.
func (g *globals) runScript(cmd *cobra.Command, script *replay.Script) (chef.Stats, error) {
	files, err := chef.OpenOutputFiles(g.cfg.OutputDir)
	if err != nil {
		return chef.Stats{}, err
	}
	defer files.Close()

	if g.cfg.SessionTimeout > 0 {
		script.MaxTime = g.cfg.SessionTimeout
	}

	engine := replay.NewEngine(script)
	monitor := chef.NewInterpreterMonitor(engine)
	session := chef.NewSession(engine, monitor, g.cfg.SessionConfig())
	session.Searcher = g.cfg.NewSearcher(monitor)
	session.Output = files.Outputs
	session.Sink = chef.NewDirSink(filepath.Join(g.cfg.OutputDir, "dumps"))

	log.WithFields(log.Fields{
		"script":   script.Name,
		"paths":    len(script.Paths),
		"searcher": g.cfg.Searcher,
	}).Info("replay started")

	if err := engine.Run(cmd.Context(), session); err != nil {
		return session.Stats(), err
	}
	if err := files.Close(); err != nil {
		return session.Stats(), err
	}
	return session.Stats(), nil
}
