package main

import (
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetsync/internal/core"
	"github.com/JonMunkholm/fleetsync/internal/core/feeds"
	"github.com/JonMunkholm/fleetsync/internal/output"
)

func (c *cli) newFeedsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List the registered feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path := c.cfg.Import.FeedsFile; path != "" {
				n, err := feeds.LoadFile(path)
				if err != nil {
					return err
				}
				slog.Debug("loaded feeds file", "path", path, "feeds", n)
			}
			return c.write(feedsResult(core.All()))
		},
	}
}

func feedsResult(defs []core.FeedDefinition) output.Result {
	rows := make([][]string, 0, len(defs))
	for _, def := range defs {
		rows = append(rows, []string{
			def.Info.Key,
			def.Info.Group,
			string(def.Layout.Kind),
			def.Info.Label,
			def.Info.Sheet,
			strconv.Itoa(def.Layout.HeaderOffset),
			strconv.Itoa(len(def.Layout.Columns)),
		})
	}
	return output.Result{
		Value: defs,
		Table: output.Data{
			Headers: []string{"Key", "Group", "Kind", "Label", "Sheet", "First Row", "Columns"},
			Rows:    rows,
		},
	}
}
