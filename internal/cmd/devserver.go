package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zfogg/feedline/internal/devserver"
	"github.com/zfogg/feedline/pkg/logger"
)

var (
	devAddr   string
	devSeed   uint64
	devEvents time.Duration
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local API with generated content",
	Long: fmt.Sprintf(`Serve the feed API from memory for development.

Every seeded account signs in with the password %q. Point api.base_url and
ws.url at this server to browse against it.`, devserver.DevPassword),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := devserver.New(devserver.Options{Seed: devSeed})

		users := s.Dataset().Users
		logger.Info("Seeded dev accounts", "count", len(users), "example", users[0].Email)
		fmt.Printf("Sign in with %s / %s\n", users[0].Email, devserver.DevPassword)

		if devEvents > 0 {
			go func() {
				ticker := time.NewTicker(devEvents)
				defer ticker.Stop()
				for {
					select {
					case <-cmd.Context().Done():
						return
					case <-ticker.C:
						n := s.AnnouncePosts(users[0].ID, 1)
						logger.Debug("Announced new post", "sockets", n)
					}
				}
			}()
		}

		return s.ListenAndServe(cmd.Context(), devAddr)
	},
}

func init() {
	devserverCmd.Flags().StringVar(&devAddr, "addr", "localhost:8787", "Listen address")
	devserverCmd.Flags().Uint64Var(&devSeed, "seed", 1, "Content seed; the same seed serves the same content")
	devserverCmd.Flags().DurationVar(&devEvents, "events", 0, "Announce a new post at this interval (0 disables)")

	rootCmd.AddCommand(devserverCmd)
}
