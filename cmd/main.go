package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgPkg "github.com/xhad/campusconnect/pkg/config"
	"github.com/xhad/campusconnect/pkg/logging"
)

var (
	configPath string
	logLevel   string

	config *cfgPkg.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "campusconnect",
	Short: "CampusConnect university support assistant",
	Long: `CampusConnect answers student questions from curated FAQs, falls back to
uploaded university documents and an LLM, and escalates anything it cannot
answer confidently to the administration.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgPkg.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
		}

		config = cfg
		logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
