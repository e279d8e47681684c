package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"async-chat-broker/internal/client"
	"async-chat-broker/internal/config"
	"async-chat-broker/internal/logging"
)

var (
	brokerURL string
	verbose   bool
	logger    *zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Submit chat turns to the broker and follow their jobs",
	Long: `chatctl talks to the async chat broker over HTTP.

Examples:
  chatctl send --chat c1 --user u1 "hello"   # submit and wait for the reply
  chatctl status 01HZX3...                   # show a job snapshot`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger = logging.NewWithWriter(config.LogConfig{Level: level, Format: "console"}, false, os.Stderr)
	},
}

func newClient() *client.Client {
	return client.New(brokerURL, &http.Client{Timeout: 15 * time.Second})
}

func main() {
	rootCmd.PersistentFlags().StringVar(&brokerURL, "url", envOr("BROKER_URL", "http://localhost:8080"), "broker base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log status changes")
	rootCmd.AddCommand(sendCmd, statusCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
