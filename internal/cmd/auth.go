package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zfogg/feedline/pkg/client"
	"github.com/zfogg/feedline/pkg/config"
	"github.com/zfogg/feedline/pkg/prompter"
	"github.com/zfogg/feedline/pkg/service"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the stored session",
}

func authService() *service.AuthService {
	return service.NewAuthService(prompter.Stdio(), client.GetClient(), config.GetCredentialsPath())
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authService().Login(cmd.Context())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authService().Logout(cmd.Context())
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authService().Refresh(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authService().Status(cmd.Context())
	},
}

func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(refreshCmd)
	authCmd.AddCommand(statusCmd)
}
