package main

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		color.Cyan("\nCampusConnect (type 'exit' to quit, 'escalate' to forward your last question)")

		scanner := bufio.NewScanner(os.Stdin)
		userPrompt := color.New(color.FgGreen).PrintfFunc()
		assistantPrompt := color.New(color.FgCyan).PrintfFunc()
		sessionID := uuid.Nil

		for {
			userPrompt("\nYou: ")
			if !scanner.Scan() {
				break
			}

			query := strings.TrimSpace(scanner.Text())
			switch strings.ToLower(query) {
			case "":
				continue
			case "exit", "quit":
				return nil
			case "escalate":
				if sessionID == uuid.Nil {
					color.Yellow("Ask a question first.")
					continue
				}
				e, err := a.escalations.CreateManual(ctx, sessionID)
				if err != nil {
					color.Red("Error: %v", err)
					continue
				}
				color.Yellow("Forwarded to the administration (escalation #%d).", e.ID)
				continue
			}

			spinner := getSpinner(" Thinking...")
			res, err := a.pipeline.AnswerQuestion(ctx, query, sessionID)
			spinner.Finish()
			if err != nil {
				color.Red("\nError: %v", err)
				continue
			}
			sessionID = res.SessionID

			assistantPrompt("\nAssistant: %s\n", res.Answer)
			color.HiBlack("[%s, confidence %.2f, language %s]", res.Source, res.Confidence, res.Language)
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
