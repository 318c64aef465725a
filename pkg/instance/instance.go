package instance

import (
	"os"
	"strings"
)

// EnvInstanceID overrides the detected process identity.
const EnvInstanceID = "PAWPASS_INSTANCE_ID"

// GetID identifies this process in logs: the explicit override, then the
// platform dyno name, then the hostname, then "<kind>-0".
func GetID(kind string) string {
	for _, key := range []string{EnvInstanceID, "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return kind + "-0"
}
