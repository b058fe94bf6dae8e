package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetsync/internal/core"
	"github.com/JonMunkholm/fleetsync/internal/logging"
	"github.com/JonMunkholm/fleetsync/internal/output"
	"github.com/JonMunkholm/fleetsync/internal/sheet"
)

type importOptions struct {
	sheet    string
	defaults []string
	dryRun   bool
}

func (c *cli) newImportCommand() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import FEED FILE",
		Short: "Import a spreadsheet into the record store",
		Example: `  fleetsync import students fees.xlsx --default busId=bus-7
  fleetsync import drivers drivers.csv --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImport(cmd, args[0], args[1], opts)
		},
	}
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "worksheet to read (default: the feed's sheet, else the first one)")
	cmd.Flags().StringArrayVar(&opts.defaults, "default", nil, "field=value for fields the sheet does not carry (repeatable)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "plan every record without writing")
	return cmd
}

func (c *cli) newPlanCommand() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "plan FEED FILE",
		Short: "Show what an import would change without writing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.dryRun = true
			return c.runImport(cmd, args[0], args[1], opts)
		},
	}
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "worksheet to read (default: the feed's sheet, else the first one)")
	cmd.Flags().StringArrayVar(&opts.defaults, "default", nil, "field=value for fields the sheet does not carry (repeatable)")
	return cmd
}

func (c *cli) runImport(cmd *cobra.Command, feedKey, path string, opts importOptions) error {
	defaults, err := parseDefaults(opts.defaults)
	if err != nil {
		return err
	}

	app, err := c.openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	def, err := core.Lookup(feedKey)
	if err != nil {
		return err
	}

	sheetName := opts.sheet
	if sheetName == "" {
		sheetName = def.Info.Sheet
	}
	rows, err := sheet.ReadFile(path, sheetName)
	if err != nil {
		return err
	}

	ctx := core.ContextWithTrigger(cmd.Context(), "cli")
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Import.Timeout)
	defer cancel()

	report, runErr := app.Importer.Run(ctx, core.RunRequest{
		Feed:     def,
		Sheet:    sheetName,
		Rows:     rows,
		Defaults: defaults,
		DryRun:   opts.dryRun,
	})
	if report != nil {
		if err := app.History.Save(context.WithoutCancel(ctx), report); err != nil {
			logging.ForRun(ctx, report.RunID, report.Feed).Warn("save run history", "error", err)
		}
		if err := c.write(reportResult(report)); err != nil {
			return err
		}
	}
	return runErr
}

// parseDefaults turns field=value pairs into run defaults.
func parseDefaults(pairs []string) (core.Fields, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	defaults := make(core.Fields, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --default %q, want field=value", pair)
		}
		defaults[field] = strings.TrimSpace(value)
	}
	return defaults, nil
}

// listedFailures caps the failures repeated in the table title.
const listedFailures = 5

func reportResult(r *core.Report) output.Result {
	title := []string{r.Summary(), "run " + r.RunID}
	if r.Error != "" {
		title = append(title, "aborted: "+r.Error)
	} else if !r.Changed() && r.Failed == 0 {
		title = append(title, "store already up to date")
	}
	for _, w := range r.Warnings {
		title = append(title, "warning: "+w.Error())
	}
	for _, o := range r.FirstFailures(listedFailures) {
		title = append(title, fmt.Sprintf("failed: row %d %s: %s", o.Row+1, o.Name, o.Code))
	}
	if more := r.Failed - listedFailures; more > 0 {
		title = append(title, fmt.Sprintf("... and %d more failures", more))
	}

	rows := make([][]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		fields := append([]string(nil), o.Fields...)
		sort.Strings(fields)
		rows = append(rows, []string{
			strconv.Itoa(o.Row + 1),
			o.Name,
			string(o.Action),
			o.TargetID,
			strings.Join(fields, ", "),
			outcomeNote(o),
		})
	}

	return output.Result{
		Value: r,
		Table: output.Data{
			Title:   title,
			Headers: []string{"Row", "Name", "Action", "Target", "Fields", "Note"},
			Rows:    rows,
		},
	}
}

func outcomeNote(o core.Outcome) string {
	var notes []string
	if o.Failed() {
		notes = append(notes, fmt.Sprintf("%s: %s", o.Code, o.Error))
	}
	for _, c := range o.Conflicts {
		notes = append(notes, fmt.Sprintf("%s %s held by %s", c.Field, c.RefID, c.HeldBy))
	}
	if o.Ambiguous > 0 {
		notes = append(notes, fmt.Sprintf("%d more candidates", o.Ambiguous))
	}
	return strings.Join(notes, "; ")
}
