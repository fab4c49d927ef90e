package domain

import "context"

// ServiceDescriptor is everything the host service manager needs to run the app.
type ServiceDescriptor struct {
	Name        string
	Description string
	WorkingDir  string
	User        string
	Env         map[string]string
	ExecStart   []string
	Restart     string
	RestartSec  int
	LogPath     string
	WantedBy    string
}

// ServiceManager abstracts the host's init system (systemd on supported hosts).
type ServiceManager interface {
	IsActive(ctx context.Context, name string) (bool, error)
	// Installed reports whether a descriptor for name is registered.
	Installed(name string) bool
	Stop(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	// Install registers unit as the descriptor of d and enables it at boot,
	// replacing any previous registration.
	Install(ctx context.Context, d ServiceDescriptor, unit []byte) error
	// Uninstall disables the service, removes its descriptor and reloads the
	// init system. found=false when nothing was registered.
	Uninstall(ctx context.Context, name string) (found bool, err error)
}
