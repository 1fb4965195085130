package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maruel/gallery/internal/models"
	"github.com/maruel/gallery/internal/storage"
)

// tagPreview is the number of tags shown per image in lists.
const tagPreview = 3

func newAddCmd(a *app) *cobra.Command {
	var d models.Draft
	var category string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an image or a personalization code",
		Long: `Add an image or a personalization code.

--url, --character, --object and --landscape accept either a URL or the path
of a local file, which is embedded as a data URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := models.ParseCategory(category)
			if err != nil {
				return err
			}
			d.Category = c
			for _, p := range []*string{&d.URL, &d.Character, &d.Object, &d.Landscape} {
				if *p, err = embedFile(*p); err != nil {
					return err
				}
			}
			r, err := models.NewBuilder(nil).Build(d)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				if err := s.Save(cmd.Context(), r); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), r.ID)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", "", "general, specialSet or personalizationCode (default general)")
	f.StringVar(&d.URL, "url", "", "Image URL or file")
	f.StringVar(&d.Tags, "tags", "", "Comma separated tags")
	f.StringVar(&d.Description, "description", "", "Description")
	f.StringVar(&d.Character, "character", "", "Character image URL or file (personalizationCode)")
	f.StringVar(&d.Object, "object", "", "Object image URL or file (personalizationCode)")
	f.StringVar(&d.Landscape, "landscape", "", "Landscape image URL or file (personalizationCode)")
	return cmd
}

// embedFile returns v as a data URL when it names a local file.
func embedFile(v string) (string, error) {
	if v == "" || strings.Contains(v, "://") || strings.HasPrefix(v, "data:") {
		return v, nil
	}
	if fi, err := os.Stat(v); err != nil || fi.IsDir() {
		return v, nil
	}
	return models.FileDataURL(v)
}

func newListCmd(a *app) *cobra.Command {
	var q, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the images matching a search term and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := models.ParseSelector(category)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				records, err := s.Search(cmd.Context(), q, sel)
				if err != nil {
					return err
				}
				return printList(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().StringVarP(&q, "query", "q", "", "Search term, matched against tags and description")
	cmd.Flags().StringVar(&category, "category", "", "Category, or all (default all)")
	return cmd
}

func printList(w io.Writer, records []models.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCATEGORY\tTAGS\tDESCRIPTION")
	for i := range records {
		r := &records[i]
		tags, more := r.TagPreview(tagPreview)
		t := strings.Join(tags, ", ")
		if more > 0 {
			t += fmt.Sprintf(" +%d", more)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Category, t, r.Description)
	}
	return tw.Flush()
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an image and its related images as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				r, related, err := s.Related(cmd.Context(), id)
				if err != nil {
					return err
				}
				e := json.NewEncoder(cmd.OutOrStdout())
				e.SetIndent("", "  ")
				e.SetEscapeHTML(false)
				return e.Encode(struct {
					Image   models.Record   `json:"image"`
					Related []models.Record `json:"related"`
				}{r, related})
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				for _, id := range ids {
					if err := s.Delete(cmd.Context(), id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("id must be an integer: " + s)
	}
	return id, nil
}
