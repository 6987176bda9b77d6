package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/config"
	"github.com/takutakahashi/agentapi-push/pkg/notification"
	"github.com/takutakahashi/agentapi-push/pkg/platform/memory"
	"github.com/takutakahashi/agentapi-push/pkg/statesync"
)

const defaultSimulatePayload = `{"title":"Task finished","body":"Your agent completed the task","data":{"process_id":"42"}}`

var (
	simulatePayload     string
	simulateAction      string
	simulateDeny        bool
	simulateOffline     bool
	simulateUnsubscribe bool
	simulateViewPath    string
)

var SimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the push lifecycle against a simulated browser",
	Long: `Run the whole push lifecycle in an in-memory browser.

The command registers the background handler, asks for permission, subscribes
and relays the subscription to the configured backend, delivers a push
payload, then clicks the resulting notification and reports where the
application navigated.

Usage:
  agentapi-push simulate --payload '{"message":"Hello","data":{"url":"/custom"}}'
  agentapi-push simulate --payload 'plain text' --action dismiss --offline`,
	RunE: runSimulate,
}

func init() {
	SimulateCmd.Flags().StringVar(&simulatePayload, "payload", defaultSimulatePayload, "Push payload, JSON or plain text")
	SimulateCmd.Flags().StringVar(&simulateAction, "action", "", "Notification action to click (view, dismiss, or empty for the body); 'none' skips the click")
	SimulateCmd.Flags().BoolVar(&simulateDeny, "deny", false, "Deny the permission prompt")
	SimulateCmd.Flags().BoolVar(&simulateOffline, "offline", false, "Do not contact the backend")
	SimulateCmd.Flags().BoolVar(&simulateUnsubscribe, "unsubscribe", false, "Unsubscribe at the end")
	SimulateCmd.Flags().StringVar(&simulateViewPath, "view", "/", "Path of an application view open before the click; empty opens none")
}

// SimulatedNotification is a displayed notification in the report
type SimulatedNotification struct {
	Title   string                    `json:"title" yaml:"title"`
	Body    string                    `json:"body" yaml:"body"`
	Icon    string                    `json:"icon" yaml:"icon"`
	Badge   string                    `json:"badge" yaml:"badge"`
	Tag     string                    `json:"tag" yaml:"tag"`
	Actions []string                  `json:"actions" yaml:"actions"`
	Data    entities.NotificationData `json:"data" yaml:"data"`
}

// SimulatedClick is the outcome of clicking the notification
type SimulatedClick struct {
	Action     string   `json:"action" yaml:"action"`
	FocusedURL string   `json:"focused_url,omitempty" yaml:"focused_url,omitempty"`
	Views      []string `json:"views" yaml:"views"`
}

// SimulationReport is printed by the simulate command
type SimulationReport struct {
	Initial      statesync.State        `json:"initial" yaml:"initial"`
	Enabled      statesync.State        `json:"enabled" yaml:"enabled"`
	Endpoint     string                 `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Notification *SimulatedNotification `json:"notification,omitempty" yaml:"notification,omitempty"`
	Click        *SimulatedClick        `json:"click,omitempty" yaml:"click,omitempty"`
	Final        *statesync.State       `json:"final,omitempty" yaml:"final,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := simulate(cmd.Context(), cfg)
	if report != nil {
		if werr := writeOutput(cmd.OutOrStdout(), outputFormat(), report); werr != nil {
			return werr
		}
	}
	return err
}

func simulate(ctx context.Context, cfg *config.Config) (*SimulationReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	answer := entities.PermissionGranted
	if simulateDeny {
		answer = entities.PermissionDenied
	}
	browser := memory.NewBrowser(cfg.App.Origin,
		memory.WithWorkerOptions(cfg.WorkerOptions()),
		memory.WithPromptAnswer(answer),
	)
	defer browser.Close()
	if simulateViewPath != "" {
		browser.OpenView(simulateViewPath)
	}

	var (
		relayClient notification.Relay
		status      statesync.StatusSource
	)
	if client := newRelayClient(cfg); client != nil && !simulateOffline {
		relayClient = client
		status = client
	}

	manager := notification.NewManager(browser, relayClient, cfg.ManagerOptions())
	manager.Initialize()

	store := statesync.NewStore(manager, status)
	store.Initialize(ctx)
	select {
	case <-store.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	report := &SimulationReport{Initial: store.Snapshot()}
	report.Enabled = store.Enable(ctx)
	if !report.Enabled.Subscribed {
		msg := "subscription failed"
		if report.Enabled.Outcome != nil {
			msg = report.Enabled.Outcome.Message
		}
		return report, errors.New(msg)
	}

	sub, err := manager.CurrentSubscription(ctx)
	if err != nil {
		return report, err
	}
	if sub != nil {
		report.Endpoint = sub.Endpoint
	}

	scope := cfg.App.Scope
	if err := browser.Push(ctx, scope, []byte(simulatePayload)); err != nil {
		return report, fmt.Errorf("failed to deliver push: %w", err)
	}
	reg := browser.Registration(scope)
	if reg == nil || len(reg.Notifications()) == 0 {
		return report, errors.New("push produced no notification")
	}
	shown := reg.Notifications()[len(reg.Notifications())-1]
	report.Notification = describeNotification(shown)

	if simulateAction != "none" {
		if err := browser.Click(ctx, shown, simulateAction); err != nil {
			return report, fmt.Errorf("failed to click notification: %w", err)
		}
		report.Click = describeClick(browser, simulateAction)
	}

	if simulateUnsubscribe {
		final := store.Disable(ctx)
		report.Final = &final
	}
	return report, nil
}

func describeNotification(n *memory.Notification) *SimulatedNotification {
	opts := n.Options()
	actions := make([]string, 0, len(opts.Actions))
	for _, a := range opts.Actions {
		actions = append(actions, a.Action)
	}
	return &SimulatedNotification{
		Title:   n.Title(),
		Body:    opts.Body,
		Icon:    opts.Icon,
		Badge:   opts.Badge,
		Tag:     opts.Tag,
		Actions: actions,
		Data:    n.Data(),
	}
}

func describeClick(b *memory.Browser, action string) *SimulatedClick {
	if action == "" {
		action = "(body)"
	}
	click := &SimulatedClick{Action: action, Views: []string{}}
	for _, v := range b.Views() {
		click.Views = append(click.Views, v.URL())
		if v.Focused() {
			click.FocusedURL = v.URL()
		}
	}
	return click
}
