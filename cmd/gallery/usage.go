package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maruel/gallery/internal/storage"
)

func newUsageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print the storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				u, err := s.Usage(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s / %s (%d%%)\n",
					humanize.IBytes(uint64(u.Used)), humanize.IBytes(uint64(u.Capacity)), u.Percent)
				return err
			})
		},
	}
}
