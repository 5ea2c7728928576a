package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/zfogg/feedline/pkg/config"
	"github.com/zfogg/feedline/pkg/service"
	"github.com/zfogg/feedline/pkg/websocket"
)

func wsClient() *websocket.Client {
	return websocket.NewClient(websocket.ConfigForURL(config.GetString("ws.url")))
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream realtime updates",
	Long:  "Print new posts, notifications and session changes as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		w := service.NewWatchService(sess, wsClient())
		w.Print = true

		err = w.Run(cmd.Context())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
