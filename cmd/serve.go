package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xhad/campusconnect/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Config{
			Addr:           config.Server.Addr,
			RequestTimeout: config.Server.RequestTimeout,
		}, server.Services{
			Pipeline:    a.pipeline,
			Chat:        a.chat,
			Escalations: a.escalations,
			FAQs:        a.faqs,
			Documents:   a.documents,
		}, a.limiter, logger)

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
