package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xhad/campusconnect/pkg/extract"
	"github.com/xhad/campusconnect/pkg/ingest"
	"github.com/xhad/campusconnect/pkg/scraper"
)

var (
	ingestTitle string
	ingestID    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Extract, chunk and index university documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target *uuid.UUID
		if ingestID != "" {
			if len(args) != 1 {
				return fmt.Errorf("--id replaces one document; got %d files", len(args))
			}
			id, err := uuid.Parse(ingestID)
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			target = &id
		}

		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		bar := getProgressBar(len(args), " Indexing documents")
		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			res, err := a.documents.Ingest(ctx, target, extract.RawContent{
				Filename: filepath.Base(path),
				Data:     data,
			}, ingest.WithTitle(ingestTitle))
			_ = bar.Add(1)
			if err != nil {
				failed++
				color.Red("\n%s: %v", path, err)
				continue
			}
			color.Green("\n✓ %s -> %s (%d chunks)", path, res.DocumentID, res.ChunkCount)
		}
		_ = bar.Finish()

		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(args))
		}
		return nil
	},
}

var crawlCmd = &cobra.Command{
	Use:   "crawl URL",
	Short: "Crawl a university website and index every page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var visited, indexed int32
		bar := getProgressBar(-1, " Crawling")
		s, err := scraper.NewWithConfig(scraper.ScraperConfig{
			BaseURL:           args[0],
			MaxDepth:          config.Scraper.MaxDepth,
			RateLimit:         config.Scraper.RateLimit,
			IgnorePatterns:    config.Scraper.IgnorePatterns,
			AllowedExtensions: config.Scraper.AllowedExtensions,
			Logger:            logger,
			OnProgress: func(string) {
				atomic.AddInt32(&visited, 1)
				_ = bar.Add(1)
			},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize scraper: %w", err)
		}

		err = s.Crawl(ctx, args[0], func(ctx context.Context, page scraper.Page) error {
			_, err := a.documents.Ingest(ctx, nil, extract.RawContent{
				Filename: scraper.FileName(page.URL),
				Data:     page.HTML,
			}, ingest.WithTitle(page.Title))
			if err == nil {
				atomic.AddInt32(&indexed, 1)
			}
			return err
		})
		_ = bar.Finish()
		if err != nil {
			return err
		}

		color.Green("\n✓ Visited %d pages, indexed %d documents", atomic.LoadInt32(&visited), atomic.LoadInt32(&indexed))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Document title (defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "Replace the text and chunks of an existing document")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(crawlCmd)
}
