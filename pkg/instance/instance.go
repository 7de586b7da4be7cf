package instance

import (
	"os"

	"github.com/angelmondragon/bazaar-backend/pkg/env"
)

// GetID identifies the running process in logs and lock ownership. It prefers the
// platform dyno name, then WORKER_ID, then the hostname.
func GetID() string {
	if id := env.First("", "DYNO", "WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
