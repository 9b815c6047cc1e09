package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/examprep/internal/config"
	"github.com/conorfennell/examprep/internal/gitsource"
	"github.com/conorfennell/examprep/internal/importer"
	"github.com/conorfennell/examprep/internal/logger"
	"github.com/conorfennell/examprep/internal/marathon"
	"github.com/conorfennell/examprep/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:           "examprep",
	Short:         "Adaptive exam practice",
	Long:          "examprep serves marathon practice sessions over a question bank imported from Markdown sources.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(topicsCmd)
}

// app is the wired service graph shared by all commands.
type app struct {
	cfg       config.Config
	log       *logger.Logger
	db        *storage.DB
	scheduler *marathon.Scheduler
	importer  *importer.Importer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Sync()
		return nil, err
	}
	log.Debug("Database opened", "driver", cfg.Database.Driver)

	scheduler := marathon.New(marathon.Stores{
		Pool:     db.Questions(),
		Queue:    db.Queue(),
		Sessions: db.Sessions(),
		Answers:  db.Answers(),
		Tx:       db,
	}, log, marathon.WithConfig(marathon.Config{
		TopK:              cfg.Marathon.TopK,
		MaxUpdateAttempts: cfg.Marathon.MaxUpdateAttempts,
		Policy: marathon.Policy{
			RetryDelay:   cfg.Marathon.RetryDelay,
			WrongPenalty: cfg.Marathon.WrongPenalty,
		},
	}))

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		scheduler: scheduler,
		importer:  importer.New(db, gitsource.New(log), log, cfg.Importer.ReposDir),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("Failed to close database", "error", err)
	}
	a.log.Sync()
}
