// Package buildinfo contains build-time metadata separate from user configuration.
package buildinfo

import (
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// Set with -ldflags "-X github.com/tphakala/audiodevicebuffer/internal/buildinfo.version=..."
var (
	version   = ""
	buildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version    string `json:"version"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	InstanceID string `json:"instance_id"` // random per process
}

var instanceID = sync.OnceValue(func() string { return uuid.NewString() })

// Get returns the build metadata of the running binary.
func Get() Info {
	return Info{
		Version:    orUnknown(version),
		BuildDate:  orUnknown(buildDate),
		GoVersion:  runtime.Version(),
		InstanceID: instanceID(),
	}
}

// Release is the Sentry release name.
func (i Info) Release() string {
	return "audiodevicebuffer@" + i.Version
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
