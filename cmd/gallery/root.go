package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maruel/gallery/internal/config"
	"github.com/maruel/gallery/internal/kv"
	"github.com/maruel/gallery/internal/storage"
)

// app holds the global flags and the configuration they resolve to.
type app struct {
	configPath string
	logLevel   string
	backend    string
	data       string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "gallery",
		Short: "Image gallery with personalization codes",
		Long: `gallery keeps a collection of images and personalization codes (a
character, an object and a landscape image) in one size-capped blob.

The blob lives in a key-value backend: memory, file, git, sqlite, redis or s3.
Run "gallery serve" for the HTTP API, or use the other commands to manage the
collection directly.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML configuration file")
	f.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&a.backend, "backend", "", fmt.Sprintf("Storage backend %v", config.Backends))
	f.StringVar(&a.data, "data", "", "Data directory of the file, git and sqlite backends")

	root.AddCommand(
		newServeCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newUsageCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSchemaCmd(),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration, applies the flag overrides and installs the
// logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Read(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.backend != "" {
		cfg.Storage.Backend = a.backend
	}
	if a.data != "" {
		cfg.Storage.Path = a.data
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(cmd.ErrOrStderr(), level)
	slog.SetDefault(a.log)
	return nil
}

// openBackend connects to the configured backend.
func (a *app) openBackend(ctx context.Context) (kv.Backend, error) {
	s := a.cfg.Storage
	switch s.Backend {
	case config.BackendMemory:
		return kv.NewMemory(), nil
	case config.BackendFile:
		return kv.NewFile(s.Path)
	case config.BackendGit:
		return kv.NewGit(s.Path, kv.Author{})
	case config.BackendSQLite:
		return kv.NewSQLite(ctx, filepath.Join(s.Path, "gallery.db"))
	case config.BackendRedis:
		r := a.cfg.Redis
		return kv.NewRedis(ctx, kv.RedisOptions{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix})
	case config.BackendS3:
		c := a.cfg.S3
		return kv.NewS3(ctx, kv.S3Options{
			Endpoint:  c.Endpoint,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
			Bucket:    c.Bucket,
			UseSSL:    c.UseSSL,
			Prefix:    c.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", s.Backend)
	}
}

// openStore opens the collection. The caller must Close it.
func (a *app) openStore(ctx context.Context) (*storage.Store, error) {
	b, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	policy, err := storage.ParseCorruptPolicy(a.cfg.Storage.OnCorrupt)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	s, err := storage.Open(ctx, b,
		storage.WithKey(a.cfg.Storage.Key),
		storage.WithCapacity(a.cfg.Storage.CapacityBytes),
		storage.WithCorruptPolicy(policy),
		storage.WithLogger(a.log),
	)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return s, nil
}

// withStore runs fn with the collection open.
func (a *app) withStore(ctx context.Context, fn func(*storage.Store) error) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	err = fn(s)
	if err2 := s.Close(); err == nil {
		err = err2
	}
	return err
}
