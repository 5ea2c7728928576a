package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zfogg/feedline/pkg/auth"
	"github.com/zfogg/feedline/pkg/client"
	"github.com/zfogg/feedline/pkg/config"
	"github.com/zfogg/feedline/pkg/credentials"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/metrics"
	"github.com/zfogg/feedline/pkg/output"
	"github.com/zfogg/feedline/pkg/service"
)

const tokenRefreshSkew = time.Minute

var (
	verbose    bool
	configPath string
	outputFmt  string
	pinToken   string

	feedMetrics = metrics.NewFeedMetrics()
)

var rootCmd = &cobra.Command{
	Use:   "feedline",
	Short: "Feedline - browse your feeds from the terminal",
	Long: `Feedline is a command-line client for the social feed API. It pages
through the home feed, marketplace, ads, notifications and conversations
with cursor pagination, either as a one-shot listing or as an
interactive infinite-scroll view.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		logger.Init(verbose)

		if outputFmt != "" {
			if !output.ValidateOutputFormat(outputFmt) {
				return clierrors.ValidationError("output", "must be one of text, json, table")
			}
			config.Set("output.format", outputFmt)
		}

		client.Init()
		client.SetTokenSource(storedToken)

		if addr := config.GetString("metrics.addr"); addr != "" {
			go func() {
				if err := feedMetrics.Serve(cmd.Context(), addr); err != nil {
					logger.Error("Metrics server stopped", "addr", addr, "error", err)
				}
			}()
		}
		return nil
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, clierrors.FormatError(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/feedline/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "", "Output format: text, json, table")
	rootCmd.PersistentFlags().StringVar(&pinToken, "token", "", "Use this access token instead of stored credentials")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func storedToken() (string, bool) {
	if pinToken != "" {
		return pinToken, true
	}
	creds, err := credentials.Load()
	if err != nil {
		logger.Warn("Failed to load credentials", "error", err)
		return "", false
	}
	return creds.Token()
}

func recovery() *auth.SessionRecovery {
	return auth.NewSessionRecovery(client.GetClient(), config.GetCredentialsPath())
}

// openSession starts the session scope shared by the lists of one command.
// Stored credentials close to expiry are refreshed first.
func openSession(ctx context.Context) (*service.Session, error) {
	if pinToken == "" {
		if err := recovery().EnsureFresh(ctx, tokenRefreshSkew); err != nil {
			logger.Warn("Could not refresh session", "error", err)
		}
	}

	sess, err := service.OpenSession(ctx, service.SessionOptions{
		Token:           pinToken,
		CredentialsPath: config.GetCredentialsPath(),
		Observer:        feedMetrics,
		Threshold:       config.GetFloat64("feed.threshold"),
	})
	if err != nil {
		return nil, err
	}
	client.SetTokenSource(sess.Token)
	return sess, nil
}
