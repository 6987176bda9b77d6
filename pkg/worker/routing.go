package worker

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

// ResolveClickTarget picks the URL a clicked notification leads to: the
// process detail route when a process id is present, the url field verbatim
// otherwise, and the application root as a last resort.
func ResolveClickTarget(data entities.NotificationData, processPath string) string {
	if processPath == "" {
		processPath = DefaultProcessPath
	}

	switch {
	case data.ProcessID != "":
		return fmt.Sprintf(processPath, url.PathEscape(data.ProcessID))
	case data.URL != "":
		return data.URL
	default:
		return "/"
	}
}

// resolveURL makes target absolute against origin. Absolute targets and an
// empty origin leave target unchanged.
func resolveURL(origin, target string) string {
	if origin == "" {
		return target
	}
	base, err := url.Parse(strings.TrimRight(origin, "/") + "/")
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return base.ResolveReference(ref).String()
}

func sameOrigin(rawURL, origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, o.Scheme) && originHost(u) == originHost(o)
}

// originHost returns the lowercased host:port of u with the scheme's
// default port made explicit.
func originHost(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return strings.ToLower(u.Hostname()) + ":" + port
}
