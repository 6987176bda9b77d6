package entities

// PermissionState represents the platform's notification permission.
// It is owned by the platform and only ever read by this module.
type PermissionState string

const (
	// PermissionUnsupported means the platform has no notification capability.
	PermissionUnsupported PermissionState = "unsupported"
	// PermissionDefault means the user has not decided yet.
	PermissionDefault PermissionState = "default"
	// PermissionGranted means notifications may be displayed.
	PermissionGranted PermissionState = "granted"
	// PermissionDenied means the user declined.
	PermissionDenied PermissionState = "denied"
)

// IsGranted returns true if notifications may be displayed
func (p PermissionState) IsGranted() bool {
	return p == PermissionGranted
}

// IsDenied returns true if the user declined notifications
func (p PermissionState) IsDenied() bool {
	return p == PermissionDenied
}

// ParsePermissionState converts a platform string into a PermissionState.
// Unknown values map to PermissionDefault.
func ParsePermissionState(s string) PermissionState {
	switch PermissionState(s) {
	case PermissionUnsupported, PermissionGranted, PermissionDenied:
		return PermissionState(s)
	default:
		return PermissionDefault
	}
}
