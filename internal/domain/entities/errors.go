package entities

import "errors"

// Error taxonomy shared by the subscription manager, the background handler
// and the relay client. Callers match with errors.Is.
var (
	// ErrUnsupportedPlatform means the platform lacks push capability.
	ErrUnsupportedPlatform = errors.New("push notifications are not supported on this platform")
	// ErrPermissionDenied means the user declined the notification prompt.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrRegistrationFailed means the background handler could not be installed.
	ErrRegistrationFailed = errors.New("background handler registration failed")
	// ErrSubscriptionFailed means the platform refused to create a subscription.
	ErrSubscriptionFailed = errors.New("push subscription failed")
	// ErrRelayFailed means the backend was unreachable or answered non-2xx.
	ErrRelayFailed = errors.New("backend relay failed")
	// ErrPayloadMalformed means a push payload was not structured data.
	ErrPayloadMalformed = errors.New("push payload is not structured data")
)
