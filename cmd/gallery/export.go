package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apierrors "github.com/maruel/gallery/internal/errors"
	"github.com/maruel/gallery/internal/models"
	"github.com/maruel/gallery/internal/storage"
)

// yamlRecord is the YAML form of a record. Slots are flattened; a record
// with a url is a single image.
type yamlRecord struct {
	ID            int64           `yaml:"id"`
	URL           string          `yaml:"url,omitempty"`
	Tags          []string        `yaml:"tags"`
	Description   string          `yaml:"description"`
	Category      models.Category `yaml:"category"`
	RelatedImages []int64         `yaml:"relatedImages"`
	Character     string          `yaml:"character,omitempty"`
	Object        string          `yaml:"object,omitempty"`
	Landscape     string          `yaml:"landscape,omitempty"`
}

func toYAML(r *models.Record) yamlRecord {
	y := yamlRecord{
		ID:            r.ID,
		URL:           r.URL,
		Tags:          r.Tags,
		Description:   r.Description,
		Category:      r.Category,
		RelatedImages: r.RelatedImages,
	}
	if r.Slots != nil {
		y.Character = r.Slots.Character
		y.Object = r.Slots.Object
		y.Landscape = r.Slots.Landscape
	}
	return y
}

func (y *yamlRecord) record() models.Record {
	r := models.Record{
		Kind:          models.KindSimple,
		ID:            y.ID,
		Tags:          y.Tags,
		Description:   y.Description,
		Category:      y.Category,
		RelatedImages: y.RelatedImages,
		URL:           y.URL,
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.RelatedImages == nil {
		r.RelatedImages = []int64{}
	}
	if y.URL == "" {
		r.Kind = models.KindComposite
		r.Slots = &models.Slots{Character: y.Character, Object: y.Object, Landscape: y.Landscape}
	}
	return r
}

func newExportCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the collection as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("format must be json or yaml, got %q", format)
			}
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				records, err := s.LoadAll(cmd.Context())
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					return writeRecords(cmd.OutOrStdout(), format, records)
				}
				f, err := os.Create(output) //nolint:gosec // G304: path is provided by the operator
				if err != nil {
					return err
				}
				if err := writeRecords(f, format, records); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func writeRecords(w io.Writer, format string, records []models.Record) error {
	if format == "yaml" {
		out := make([]yamlRecord, len(records))
		for i := range records {
			out[i] = toYAML(&records[i])
		}
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(out); err != nil {
			return err
		}
		return e.Close()
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	e.SetEscapeHTML(false)
	return e.Encode(records)
}

// readRecords decodes a collection. Files ending in .yaml or .yml are YAML,
// anything else is JSON.
func readRecords(path string, data []byte) ([]models.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var in []yamlRecord
		if err := yaml.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		out := make([]models.Record, len(in))
		for i := range in {
			out[i] = in[i].record()
		}
		return out, nil
	default:
		var out []models.Record
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return out, nil
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append the records of an exported collection",
		Long: `Append the records of a JSON or YAML export. Records whose id already
exists are skipped. The import stops at the first record that does not fit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			records, err := readRecords(args[0], data)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				added, skipped := 0, 0
				for _, r := range records {
					err := s.Save(cmd.Context(), r)
					switch {
					case err == nil:
						added++
					case apierrors.HasCode(err, apierrors.ErrConflict):
						slog.WarnContext(cmd.Context(), "Skipping existing image", "id", r.ID)
						skipped++
					default:
						return fmt.Errorf("image %d: %w", r.ID, err)
					}
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "added %d, skipped %d\n", added, skipped)
				return err
			})
		},
	}
}
