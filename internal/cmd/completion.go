package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion bash|zsh|fish",
	Short: "Print a shell completion script",
	Long: `Print a completion script for feedline. Filter flags with a fixed
set of values (--type, --status, --unread) complete those values.

  source <(feedline completion bash)
  feedline completion zsh > "${fpath[1]}/_feedline"
  feedline completion fish > ~/.config/fish/completions/feedline.fish
`,
	ValidArgs: []string{"bash", "zsh", "fish"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		}
		return fmt.Errorf("unsupported shell: %s", args[0])
	},
}

// filterValues lists the accepted values of enumerated list filters.
var filterValues = map[string][]string{
	"type":   {"post", "ad"},
	"status": {"active", "paused", "ended"},
	"unread": {"true", "false"},
}

// completeFilter registers value completion for filter flag name when its
// values are enumerable.
func completeFilter(cmd *cobra.Command, name string) {
	values, ok := filterValues[name]
	if !ok {
		return
	}
	_ = cmd.RegisterFlagCompletionFunc(name, cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp))
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
