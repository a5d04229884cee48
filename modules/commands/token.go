package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"focustrack/modules/platform/config"
	"focustrack/modules/platform/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token [subject]",
	Short: "Issue a bearer token for the HTTP/WebSocket surface",
	Long: `Signs a token with the configured auth.secret. Browser clients pass it as
the token query parameter of /ws; other clients as an Authorization header.

Example:
  focustrack token dashboard
  focustrack watch --ws ws://127.0.0.1:9099/ws --token $(focustrack token)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		auth := server.NewAuthenticator(config.GetGlobal().Auth)
		if auth == nil {
			return errors.New("auth.secret is not configured (see 'focustrack config init --secret')")
		}

		subject := "cli"
		if len(args) > 0 {
			subject = args[0]
		} else if user := os.Getenv("USER"); user != "" {
			subject = user
		}

		token, err := auth.IssueToken(subject)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}
