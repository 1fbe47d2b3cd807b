package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/extract"
	"github.com/joseph-ayodele/essaycoach/internal/llm/openai"
	"github.com/joseph-ayodele/essaycoach/internal/metrics"
	"github.com/joseph-ayodele/essaycoach/internal/pipeline"
	repo "github.com/joseph-ayodele/essaycoach/internal/repository"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		owner      string
		name       string
		dir        bool
		watch      bool
		workers    int
		skipHidden bool
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "rubric-import <file|dir>",
		Short: "Import a rubric document into the rubric library",
		Long: `Extracts text from a PDF, XLSX or plain-text rubric, asks the model for its
structure, validates it and stores it for the given owner.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			logger := common.NewLogger(os.Stderr, debug)

			cfg := common.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ValidateLLM(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()
			if err := repo.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			// counters only leave the process through a Pushgateway
			var rec *metrics.Recorder
			if url := cfg.Server.PushgatewayURL; url != "" {
				reg := prometheus.NewRegistry()
				if rec, err = metrics.New(reg); err != nil {
					return err
				}
				defer func() {
					pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := metrics.Push(pushCtx, url, "rubric_import", reg); err != nil {
						logger.Warn("metrics.push.error", "error", err)
					}
				}()
			}
			importer := pipeline.NewImporter(
				logger,
				extract.NewExtractor(extract.ConfigFrom(cfg.Extract), logger),
				openai.NewClient(openai.Config{
					APIKey:       cfg.LLM.APIKey,
					URL:          cfg.LLM.URL,
					Model:        cfg.LLM.Model,
					Temperature:  cfg.LLM.Temperature,
					MaxTokens:    cfg.LLM.MaxTokens,
					Timeout:      cfg.LLM.Timeout,
					RetryMax:     retryMax(cfg.LLM.RetryMax),
					RetryWaitMin: cfg.LLM.RetryWaitMin,
					RetryWaitMax: cfg.LLM.RetryWaitMax,
				}, logger),
				repo.NewRubricRepository(db, logger),
				rec,
				cfg.Import.MinTextLength,
			)

			if watch {
				return importer.Watch(ctx, owner, args[0], pipeline.WatchOptions{
					SkipHidden:  skipHidden,
					InitialScan: dir,
				}, func(fr pipeline.FileResult) { _ = printJSON(fr) })
			}
			if dir {
				results, stats, err := importer.ImportDirectory(ctx, owner, args[0], pipeline.DirOptions{
					SkipHidden: skipHidden,
					Workers:    workers,
				})
				if printErr := printJSON(map[string]any{"stats": stats, "results": results}); printErr != nil {
					return printErr
				}
				return err
			}
			return importFile(ctx, importer, args[0], owner, name)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id the rubric belongs to")
	cmd.Flags().StringVar(&name, "name", "", "rubric name (overrides the extracted name)")
	cmd.Flags().BoolVar(&dir, "dir", false, "treat the argument as a directory and import every supported file")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and import rubric files as they appear in the directory (with --dir, import existing files first)")
	cmd.Flags().IntVar(&workers, "workers", 2, "concurrent imports when --dir is set")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and directories when --dir is set")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func importFile(ctx context.Context, importer *pipeline.Importer, path, owner, name string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ResourceError(common.CodeResourceNotFound, "file not found", "file", path, err)
		}
		return err
	}
	defer f.Close()

	res, err := importer.Import(ctx, pipeline.ImportRequest{
		OwnerID:    owner,
		Document:   extract.Document{Name: filepath.Base(path), Content: f},
		RubricName: name,
	})
	if err != nil {
		var ae *common.AppError
		if errors.As(err, &ae) {
			_ = printJSON(ae.ToMap())
		}
		return err
	}
	return printJSON(res)
}

// retryMax maps the env value (0 = no retries) onto the client's convention.
func retryMax(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
