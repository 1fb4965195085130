package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/maruel/gallery/internal/models"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the stored collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := json.NewEncoder(cmd.OutOrStdout())
			e.SetIndent("", "  ")
			return e.Encode(models.CollectionSchema())
		},
	}
}
