package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backend subscription status",
	Long:  "Ask the relay backend whether it holds a push subscription for the current token",
	RunE:  runStatus,
}

// StatusResult is printed by the status command
type StatusResult struct {
	BaseURL      string `json:"base_url" yaml:"base_url"`
	IsSubscribed bool   `json:"is_subscribed" yaml:"is_subscribed"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newRelayClient(cfg)
	if client == nil {
		return errors.New("backend.base_url is not configured")
	}

	subscribed, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), outputFormat(), StatusResult{
		BaseURL:      client.BaseURL(),
		IsSubscribed: subscribed,
	})
}
