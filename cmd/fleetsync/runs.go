package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetsync/internal/history"
	"github.com/JonMunkholm/fleetsync/internal/output"
)

func (c *cli) newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect past import runs",
	}
	cmd.AddCommand(c.newRunsListCommand(), c.newRunsShowCommand())
	return cmd
}

func (c *cli) newRunsListCommand() *cobra.Command {
	var opts history.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			runs, err := app.History.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return c.write(runsResult(runs))
		},
	}
	cmd.Flags().StringVar(&opts.Feed, "feed", "", "only runs of this feed")
	cmd.Flags().IntVar(&opts.Limit, "limit", history.DefaultListLimit, "maximum number of runs")
	return cmd
}

func (c *cli) newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the report of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.History.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.write(reportResult(report))
		},
	}
}

func runsResult(runs []history.Summary) output.Result {
	if runs == nil {
		runs = []history.Summary{}
	}
	if len(runs) == 0 {
		return output.Result{Value: runs, Table: output.Data{Title: []string{"No runs yet."}}}
	}

	rows := make([][]string, 0, len(runs))
	for _, s := range runs {
		mode := "import"
		if s.DryRun {
			mode = "plan"
		}
		rows = append(rows, []string{
			s.RunID,
			s.Feed,
			mode,
			s.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(s.Created),
			strconv.Itoa(s.Patched),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Conflicts),
			s.Error,
		})
	}
	return output.Result{
		Value: runs,
		Table: output.Data{
			Title:   []string{fmt.Sprintf("%d runs", len(runs))},
			Headers: []string{"Run", "Feed", "Mode", "Started", "Created", "Patched", "Skipped", "Failed", "Conflicts", "Error"},
			Rows:    rows,
		},
	}
}
