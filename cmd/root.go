package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	envFile   string
	verbose   bool
	output    string
	baseURL   string
	token     string
	tokenFile string
)

// RootCmd is the agentapi-push command
var RootCmd = &cobra.Command{
	Use:   "agentapi-push",
	Short: "AgentAPI push notification client",
	Long:  "Drive the AgentAPI push notification lifecycle: subscription, relay to the backend, and delivery through a simulated browser",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (json, yaml or toml)")
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Env file loaded before configuration")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().StringVarP(&output, "output", "o", OutputYAML, "Output format (yaml, json)")
	RootCmd.PersistentFlags().StringVar(&baseURL, "backend-url", "", "Relay backend base URL")
	RootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for the relay backend")
	RootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Session file holding the bearer token")

	// Bind flags to viper
	bindings := map[string]string{
		"config":             "config",
		"env_file":           "env-file",
		"verbose":            "verbose",
		"output":             "output",
		"backend.base_url":   "backend-url",
		"backend.token":      "token",
		"backend.token_file": "token-file",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(flag)); err != nil {
			log.Printf("Failed to bind %s flag: %v", flag, err)
		}
	}

	RootCmd.AddCommand(SimulateCmd)
	RootCmd.AddCommand(SendCmd)
	RootCmd.AddCommand(VapidCmd)
	RootCmd.AddCommand(StatusCmd)
	RootCmd.AddCommand(DevBackendCmd)
}
