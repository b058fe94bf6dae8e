package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetsync/internal/application"
	"github.com/JonMunkholm/fleetsync/internal/config"
	"github.com/JonMunkholm/fleetsync/internal/logging"
	"github.com/JonMunkholm/fleetsync/internal/output"
)

// cli holds the state shared by all commands of one invocation.
type cli struct {
	out    io.Writer
	errOut io.Writer

	formatFlag string
	logLevel   string
	feedsFile  string

	cfg    *config.Config
	format output.Format
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "fleetsync",
		Short: "Sync student, driver and vehicle spreadsheets into the record store",
		Long: `fleetsync reads the office spreadsheets (fee registers, driver lists and
vehicle lists) and brings the record store up to date: new people and
vehicles are created, missing details are filled in, and nothing that is
already stored is overwritten.

Configuration comes from the environment (and a .env file), the same
variables the web service reads.`,
		PersistentPreRunE: c.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&c.formatFlag, "format", "o", "", "output format: table, json, yaml (default: table on a terminal, json otherwise)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&c.feedsFile, "feeds-file", "", "YAML file with additional feed layouts (overrides IMPORT_FEEDS_FILE)")

	root.AddCommand(
		c.newImportCommand(),
		c.newPlanCommand(),
		c.newFeedsCommand(),
		c.newRunsCommand(),
	)
	return root
}

// setup loads configuration and logging before any command runs.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.feedsFile != "" {
		cfg.Import.FeedsFile = c.feedsFile
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	c.cfg = cfg

	slog.SetDefault(logging.New(c.errOut, cfg.Logging.Level, cfg.Logging.Format))

	c.format, err = output.ParseFormat(c.formatFlag)
	return err
}

// openApp connects the backends the command needs. Callers must Close it.
func (c *cli) openApp(cmd *cobra.Command) (*application.App, error) {
	return application.New(cmd.Context(), c.cfg)
}

func (c *cli) write(r output.Result) error {
	return output.Write(c.out, c.format, r)
}
