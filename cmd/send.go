package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/notification"
)

var (
	sendSubscriptionFile string
	sendTitle            string
	sendBody             string
	sendURL              string
	sendProcessID        string
	sendIcon             string
	sendBadge            string
	sendTag              string
	sendRaw              string
	sendTTL              int
	sendUrgency          string
	sendTopic            string
)

var SendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a test push to a subscription",
	Long: `Send a test push notification to a subscription through its push service.

The subscription file holds the JSON a browser returns for a subscription:
  {"endpoint": "...", "expirationTime": null, "keys": {"p256dh": "...", "auth": "..."}}

VAPID credentials come from configuration (vapid.public_key, vapid.private_key
and vapid.subject, or AGENTAPI_PUSH_VAPID_* environment variables).

Usage:
  agentapi-push send --subscription sub.json --title "Build finished" --process-id 42
  agentapi-push send --subscription sub.json --raw "plain text body"`,
	RunE: runSendPush,
}

func init() {
	SendCmd.Flags().StringVar(&sendSubscriptionFile, "subscription", "", "Path to the subscription JSON file (required)")
	SendCmd.Flags().StringVar(&sendTitle, "title", "", "Notification title")
	SendCmd.Flags().StringVar(&sendBody, "body", "", "Notification body")
	SendCmd.Flags().StringVar(&sendURL, "url", "", "URL opened on click")
	SendCmd.Flags().StringVar(&sendProcessID, "process-id", "", "Process opened on click")
	SendCmd.Flags().StringVar(&sendIcon, "icon", "", "Icon URL")
	SendCmd.Flags().StringVar(&sendBadge, "badge", "", "Badge URL")
	SendCmd.Flags().StringVar(&sendTag, "tag", "", "Tag used to replace an earlier notification")
	SendCmd.Flags().StringVar(&sendRaw, "raw", "", "Send this text as-is instead of a JSON payload")
	SendCmd.Flags().IntVar(&sendTTL, "ttl", notification.DefaultTTL, "Time to live in seconds")
	SendCmd.Flags().StringVar(&sendUrgency, "urgency", "normal", "Urgency (very-low, low, normal, high)")
	SendCmd.Flags().StringVar(&sendTopic, "topic", "", "Topic used to replace an undelivered push")
	_ = SendCmd.MarkFlagRequired("subscription")
}

// SendResult is printed by the send command
type SendResult struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Delivered bool   `json:"delivered" yaml:"delivered"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runSendPush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sub, err := readSubscription(sendSubscriptionFile)
	if err != nil {
		return err
	}

	sender, err := notification.NewSender(cfg.SenderConfig(), nil)
	if err != nil {
		return err
	}

	opts := notification.SendOptions{TTL: sendTTL, Urgency: sendUrgency, Topic: sendTopic}
	if sendRaw != "" {
		err = sender.SendRaw(cmd.Context(), sub, []byte(sendRaw), opts)
	} else {
		err = sender.Send(cmd.Context(), sub, buildMessage(), opts)
	}

	result := SendResult{Endpoint: sub.Endpoint, Delivered: err == nil}
	if err != nil {
		result.Error = err.Error()
	}
	if werr := writeOutput(cmd.OutOrStdout(), outputFormat(), result); werr != nil {
		return werr
	}
	return err
}

func buildMessage() notification.Message {
	return notification.Message{
		Title: sendTitle,
		Body:  sendBody,
		Icon:  sendIcon,
		Badge: sendBadge,
		Tag:   sendTag,
		Data:  entities.NotificationData{ProcessID: sendProcessID, URL: sendURL},
	}
}

func readSubscription(path string) (*entities.Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription file: %w", err)
	}
	var sub entities.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse subscription file: %w", err)
	}
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("invalid subscription: %w", err)
	}
	return &sub, nil
}
