package domain

import (
	"context"
	"io"
)

// Command is a single host process invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader
}

// Executor runs host commands. Every shell-out in the installer goes through it.
type Executor interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
	LookPath(name string) (string, error)
}

// Firewall opens inbound ports when a firewall tool is present.
type Firewall interface {
	Available() bool
	Allow(ctx context.Context, port int) error
}

// PortReclaimer frees a TCP port held by another listener.
type PortReclaimer interface {
	Release(ctx context.Context, port int) error
}

// PackageManager installs and removes host packages.
type PackageManager interface {
	Available() bool
	Install(ctx context.Context, packages ...string) error
	Remove(ctx context.Context, packages ...string) error
}

// RenewMarker tags the certificate renewal job.
const RenewMarker = "trafficx-renew"

// Scheduler manages marker-tagged periodic jobs per OS user.
type Scheduler interface {
	Ensure(ctx context.Context, username, marker, line string) error
	// Remove reports found=false when no tagged job existed.
	Remove(ctx context.Context, username, marker string) (found bool, err error)
}

// DatabaseProbe inspects the data source the deployed app reads.
type DatabaseProbe interface {
	Probe(ctx context.Context, path string) error
}

// HealthProbe checks that the started service answers.
type HealthProbe interface {
	Wait(ctx context.Context, rawURL string) error
}

// Downloader fetches a remote archive into a local file.
type Downloader interface {
	Download(ctx context.Context, url, dst string) error
}
