package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PushPayload is the result of parsing a raw push message. It is either a
// StructuredPayload or a PlainTextPayload.
type PushPayload interface {
	isPushPayload()
}

// StructuredPayload is a push message that decoded as a JSON object
type StructuredPayload struct {
	Title   string           `json:"title"`
	Body    string           `json:"body"`
	Message string           `json:"message"`
	Icon    string           `json:"icon"`
	Badge   string           `json:"badge"`
	Tag     string           `json:"tag"`
	Data    NotificationData `json:"data"`
}

// PlainTextPayload is a push message that was not structured data
type PlainTextPayload struct {
	Text string
}

func (StructuredPayload) isPushPayload() {}
func (PlainTextPayload) isPushPayload() {}

// ParsePushPayload decodes a raw push message. Anything that is not a JSON
// object becomes a PlainTextPayload carrying the raw text; an empty message
// is an empty StructuredPayload so every field takes its default.
func ParsePushPayload(raw []byte) PushPayload {
	p, err := DecodeStructuredPayload(raw)
	if err != nil {
		return PlainTextPayload{Text: string(raw)}
	}
	return p
}

// DecodeStructuredPayload decodes raw as a JSON object. Fields holding a
// value of the wrong type are skipped. It returns an error wrapping
// ErrPayloadMalformed only when raw is not a JSON object.
func DecodeStructuredPayload(raw []byte) (StructuredPayload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return StructuredPayload{}, nil
	}
	if trimmed[0] != '{' {
		return StructuredPayload{}, fmt.Errorf("%w: not a JSON object", ErrPayloadMalformed)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return StructuredPayload{}, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}

	p := StructuredPayload{
		Title:   stringField(fields, "title"),
		Body:    stringField(fields, "body"),
		Message: stringField(fields, "message"),
		Icon:    stringField(fields, "icon"),
		Badge:   stringField(fields, "badge"),
		Tag:     stringField(fields, "tag"),
	}
	if data, ok := fields["data"]; ok {
		// non-object data leaves Data empty
		_ = json.Unmarshal(data, &p.Data)
	}
	return p, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Normalize applies field fallbacks and produces the payload to display
func Normalize(p PushPayload, defaults NotificationDefaults) NotificationPayload {
	switch v := p.(type) {
	case StructuredPayload:
		body := v.Body
		if body == "" {
			body = v.Message
		}
		return NotificationPayload{
			Title: orDefault(v.Title, defaults.Title),
			Body:  body,
			Icon:  orDefault(v.Icon, defaults.Icon),
			Badge: orDefault(v.Badge, defaults.Badge),
			Tag:   orDefault(v.Tag, defaults.Tag),
			Data:  v.Data,
		}
	case PlainTextPayload:
		return NotificationPayload{
			Title: defaults.Title,
			Body:  v.Text,
			Icon:  defaults.Icon,
			Badge: defaults.Badge,
			Tag:   defaults.Tag,
		}
	default:
		return NotificationPayload{
			Title: defaults.Title,
			Icon:  defaults.Icon,
			Badge: defaults.Badge,
			Tag:   defaults.Tag,
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
