package cmd

import (
	"github.com/spf13/cobra"

	"github.com/takutakahashi/agentapi-push/pkg/notification"
)

var VapidCmd = &cobra.Command{
	Use:   "vapid",
	Short: "VAPID key utilities",
}

var vapidGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a VAPID key pair",
	Long: `Generate an application server (VAPID) key pair.

Both keys are URL-safe base64. The public key is the application server key
browsers subscribe with; keep the private key secret.

Usage:
  agentapi-push vapid generate --output env >> push.env`,
	RunE: runVapidGenerate,
}

func init() {
	VapidCmd.AddCommand(vapidGenerateCmd)
}

func runVapidGenerate(cmd *cobra.Command, args []string) error {
	publicKey, privateKey, err := notification.GenerateVAPIDKeys()
	if err != nil {
		return err
	}

	if outputFormat() == OutputEnv {
		return writeOutput(cmd.OutOrStdout(), OutputEnv, map[string]string{
			"AGENTAPI_PUSH_VAPID_PUBLIC_KEY":  publicKey,
			"AGENTAPI_PUSH_VAPID_PRIVATE_KEY": privateKey,
		})
	}
	return writeOutput(cmd.OutOrStdout(), outputFormat(), map[string]string{
		"public_key":  publicKey,
		"private_key": privateKey,
	})
}
