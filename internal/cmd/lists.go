package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zfogg/feedline/pkg/api"
	"github.com/zfogg/feedline/pkg/auth"
	"github.com/zfogg/feedline/pkg/client"
	"github.com/zfogg/feedline/pkg/output"
	"github.com/zfogg/feedline/pkg/service"
)

type listFlags struct {
	limit       int
	pages       int
	interactive bool
	live        bool
	hideAds     bool
	markRead    bool
	filters     map[string]*string
}

func (f *listFlags) request(kind string) service.ListRequest {
	filters := make(map[string]string, len(f.filters))
	for name, v := range f.filters {
		if *v != "" {
			filters[name] = *v
		}
	}
	return service.ListRequest{
		Kind:        kind,
		Filters:     filters,
		Limit:       f.limit,
		Pages:       f.pages,
		HideAds:     f.hideAds,
		Interactive: f.interactive,
	}
}

var filterHelp = map[string]string{
	"type":     "Only items of this kind (post, ad)",
	"category": "Product category",
	"q":        "Search text",
	"status":   "Ad status (active, paused, ended)",
	"unread":   "Only unread notifications (true, false)",
}

// newListCmd builds the command for one paginated list. Filter flags come
// from the endpoint definition.
func newListCmd(kind, use, short string) *cobra.Command {
	var flags *listFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			svc := service.NewListService(sess, client.GetClient())
			if pinToken == "" {
				svc.WithRecovery(recovery())
			}
			if flags.interactive && flags.live {
				svc.WithWatcher(service.NewWatchService(sess, wsClient()))
			}

			req := flags.request(kind)
			err = svc.Show(cmd.Context(), req)
			if pinToken == "" && auth.IsSessionError(err) {
				if rerr := recovery().HandleSessionError(cmd.Context(), err); rerr != nil {
					return rerr
				}
				sess.Reload()
				err = svc.Show(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			if flags.markRead {
				if err := api.MarkAllNotificationsAsRead(cmd.Context(), client.GetClient()); err != nil {
					return err
				}
				output.PrintSuccess("✓ Marked all notifications as read")
			}
			return nil
		},
	}

	flags = bindListFlags(cmd, kind)
	return cmd
}

func bindListFlags(cmd *cobra.Command, kind string) *listFlags {
	flags := &listFlags{filters: map[string]*string{}}

	cmd.Flags().IntVarP(&flags.limit, "limit", "l", 0, "Items per page (default from feed.limit."+kind+")")
	cmd.Flags().IntVarP(&flags.pages, "pages", "p", 1, "Pages to load; 0 loads until the end")
	cmd.Flags().BoolVarP(&flags.interactive, "interactive", "i", false, "Open an infinite-scroll view")
	cmd.Flags().BoolVar(&flags.live, "live", false, "With --interactive, follow realtime updates")

	if ep, ok := api.EndpointFor(kind); ok {
		for _, name := range ep.Filters {
			flags.filters[name] = cmd.Flags().String(name, "", filterHelp[name])
			completeFilter(cmd, name)
		}
	}

	switch kind {
	case api.KindPosts:
		cmd.Flags().BoolVar(&flags.hideAds, "hide-ads", false, "Hide sponsored items")
	case api.KindNotifications:
		cmd.Flags().BoolVar(&flags.markRead, "mark-read", false, "Mark all notifications as read afterwards")
	}
	return flags
}

func init() {
	rootCmd.AddCommand(newListCmd(api.KindPosts, "feed", "Browse your home feed"))
	rootCmd.AddCommand(newListCmd(api.KindProducts, "products", "Browse marketplace products"))
	rootCmd.AddCommand(newListCmd(api.KindAds, "ads", "Browse your ads"))
	rootCmd.AddCommand(newListCmd(api.KindNotifications, "notifications", "Browse notifications"))
	rootCmd.AddCommand(newListCmd(api.KindConversations, "conversations", "Browse conversations"))
}
