package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Notification action identifiers
const (
	ActionView    = "view"
	ActionDismiss = "dismiss"
)

// DefaultVibrationPattern is applied to every push-driven notification
var DefaultVibrationPattern = []int{200, 100, 200}

// NotificationData is the free-form data attached to a notification.
// ProcessID and URL drive click routing; every other key is kept in Extra.
type NotificationData struct {
	ProcessID string
	URL       string
	Extra     map[string]any
}

// IsEmpty returns true if the data carries nothing
func (d NotificationData) IsEmpty() bool {
	return d.ProcessID == "" && d.URL == "" && len(d.Extra) == 0
}

// Map flattens the data back into a single free-form object
func (d NotificationData) Map() map[string]any {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	if d.ProcessID != "" {
		out["process_id"] = d.ProcessID
	}
	if d.URL != "" {
		out["url"] = d.URL
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (d NotificationData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

// MarshalYAML renders the same flat object as MarshalJSON
func (d NotificationData) MarshalYAML() (interface{}, error) {
	return d.Map(), nil
}

// UnmarshalJSON reads a free-form object. process_id may be a string or a
// number; non-object input leaves the data empty.
func (d *NotificationData) UnmarshalJSON(data []byte) error {
	*d = NotificationData{}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	for k, v := range obj {
		switch k {
		case "process_id":
			switch id := v.(type) {
			case string:
				d.ProcessID = id
			case json.Number:
				d.ProcessID = id.String()
			}
		case "url":
			if u, ok := v.(string); ok {
				d.URL = u
			}
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]any)
			}
			d.Extra[k] = v
		}
	}
	return nil
}

// NotificationPayload is a push payload after normalization
type NotificationPayload struct {
	Title string
	Body  string
	Icon  string
	Badge string
	// Tag is the dedup key; notifications sharing a tag replace each other.
	Tag  string
	Data NotificationData
}

// NotificationAction is an action button shown on a notification
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NotificationOptions are the display options handed to the platform
type NotificationOptions struct {
	Body               string               `json:"body,omitempty"`
	Icon               string               `json:"icon,omitempty"`
	Badge              string               `json:"badge,omitempty"`
	Tag                string               `json:"tag,omitempty"`
	Data               NotificationData     `json:"data"`
	Vibrate            []int                `json:"vibrate,omitempty"`
	RequireInteraction bool                 `json:"requireInteraction"`
	Actions            []NotificationAction `json:"actions,omitempty"`
}

// NotificationDefaults are the fallbacks for unspecified payload fields
type NotificationDefaults struct {
	Title string
	Icon  string
	Badge string
	Tag   string
}

// DefaultNotificationDefaults returns the built-in fallbacks
func DefaultNotificationDefaults() NotificationDefaults {
	return NotificationDefaults{
		Title: "AgentAPI",
		Icon:  "/icon-192x192.png",
		Badge: "/badge-72x72.png",
		Tag:   "agentapi-notification",
	}
}

// DefaultActions returns the view and dismiss actions
func DefaultActions() []NotificationAction {
	return []NotificationAction{
		{Action: ActionView, Title: "View"},
		{Action: ActionDismiss, Title: "Dismiss"},
	}
}

// BuildNotificationOptions derives display options from a normalized
// payload plus the fixed platform hints.
func BuildNotificationOptions(p NotificationPayload) NotificationOptions {
	vibrate := make([]int, len(DefaultVibrationPattern))
	copy(vibrate, DefaultVibrationPattern)

	return NotificationOptions{
		Body:               p.Body,
		Icon:               p.Icon,
		Badge:              p.Badge,
		Tag:                p.Tag,
		Data:               p.Data,
		Vibrate:            vibrate,
		RequireInteraction: true,
		Actions:            DefaultActions(),
	}
}

// String returns a short description for logging
func (p NotificationPayload) String() string {
	return fmt.Sprintf("title=%q tag=%q", p.Title, p.Tag)
}
