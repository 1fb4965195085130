package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruel/gallery/internal/config"
	"github.com/maruel/gallery/internal/kv"
)

func newHistoryCmd(a *app) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the commits of the collection (git backend only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Storage.Backend != config.BackendGit {
				return errors.New("history requires the git backend")
			}
			g, err := kv.NewGit(a.cfg.Storage.Path, kv.Author{})
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()
			commits, err := g.History(cmd.Context(), a.cfg.Storage.Key, n)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range commits {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Hash[:min(len(c.Hash), 10)], c.When.Local().Format(time.DateTime), c.Message)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&n, "number", "n", 20, "Maximum number of commits")
	return cmd
}
