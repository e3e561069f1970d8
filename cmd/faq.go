package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xhad/campusconnect/pkg/faq"
)

var faqCmd = &cobra.Command{
	Use:   "faq",
	Short: "Manage curated FAQs",
}

var faqImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Bulk import FAQs from a JSON or YAML list",
	Long: `Imports a list of FAQs. Each item has canonical_question, answer and an
optional list of alternative questions. Items whose canonical question
already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := readFAQFile(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		bar := getProgressBar(len(items), " Importing FAQs")
		res := a.faqs.BulkImport(ctx, items, func(done int) { _ = bar.Set(done) })
		_ = bar.Finish()

		color.Green("\n✓ Inserted %d, skipped %d", res.Inserted, res.Skipped)
		for _, e := range res.Errors {
			color.Yellow("  %s", e)
		}
		return nil
	},
}

func readFAQFile(path string) ([]faq.FAQInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []faq.FAQInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &items)
	case ".json":
		err = json.Unmarshal(data, &items)
	default:
		return nil, fmt.Errorf("%s: expected a .json, .yaml or .yml file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return items, nil
}

func init() {
	faqCmd.AddCommand(faqImportCmd)
	rootCmd.AddCommand(faqCmd)
}
