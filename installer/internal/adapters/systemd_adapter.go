package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kardianos/service"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// SystemdUnitDir is where kardianos/service writes systemd units.
const SystemdUnitDir = "/etc/systemd/system"

const systemdPlatform = "linux-systemd"

// ServiceFactory returns the init-system handle for cfg.
type ServiceFactory func(cfg *service.Config) (service.Service, error)

// SystemdAdapter implements domain.ServiceManager on top of kardianos/service.
// Units are written from our own rendered descriptor through the
// SystemdScript option, so every field of the descriptor reaches the unit.
type SystemdAdapter struct {
	unitDir string
	factory ServiceFactory
	logger  *slog.Logger
}

// NewSystemdAdapter initializes the service manager. A nil factory uses the
// host's init system and refuses anything but systemd.
func NewSystemdAdapter(unitDir string, factory ServiceFactory, logger *slog.Logger) *SystemdAdapter {
	if factory == nil {
		factory = newSystemdService
	}
	return &SystemdAdapter{
		unitDir: unitDir,
		factory: factory,
		logger:  logger,
	}
}

// UnitPath is where the descriptor for name lives.
func (a *SystemdAdapter) UnitPath(name string) string {
	return filepath.Join(a.unitDir, name+".service")
}

func (a *SystemdAdapter) Installed(name string) bool {
	_, err := os.Stat(a.UnitPath(name))
	return err == nil
}

// IsActive reports whether the unit may be serving. Transitional states such
// as reloading come back from kardianos as ErrNotInstalled, so a unit whose
// file is on disk counts as active there and gets stopped before a rewrite.
func (a *SystemdAdapter) IsActive(ctx context.Context, name string) (bool, error) {
	svc, err := a.handle(ctx, &service.Config{Name: name})
	if err != nil {
		return false, err
	}

	status, err := svc.Status()
	switch {
	case err == nil:
		return status == service.StatusRunning, nil
	case errors.Is(err, service.ErrNotInstalled):
		return a.Installed(name), nil
	case strings.Contains(err.Error(), "failed state"):
		return false, nil
	}
	return false, fmt.Errorf("systemd: status %s: %w", name, err)
}

func (a *SystemdAdapter) Stop(ctx context.Context, name string) error {
	svc, err := a.handle(ctx, &service.Config{Name: name})
	if err != nil {
		return err
	}
	return svc.Stop()
}

func (a *SystemdAdapter) Start(ctx context.Context, name string) error {
	svc, err := a.handle(ctx, &service.Config{Name: name})
	if err != nil {
		return err
	}
	return svc.Start()
}

// Install follows the reconfigure flow: an existing registration is removed
// before the new unit is written, enabled and the daemon reloaded.
func (a *SystemdAdapter) Install(ctx context.Context, d domain.ServiceDescriptor, unit []byte) error {
	if a.Installed(d.Name) {
		if _, err := a.Uninstall(ctx, d.Name); err != nil {
			return fmt.Errorf("systemd: replace %s: %w", d.Name, err)
		}
	}

	svc, err := a.handle(ctx, serviceConfig(d, unit))
	if err != nil {
		return err
	}
	if err := svc.Install(); err != nil {
		return fmt.Errorf("systemd: install %s: %w", d.Name, err)
	}
	a.logger.Debug("Service unit installed", slog.String("path", a.UnitPath(d.Name)))
	return nil
}

func (a *SystemdAdapter) Uninstall(ctx context.Context, name string) (bool, error) {
	if !a.Installed(name) {
		return false, nil
	}
	svc, err := a.handle(ctx, &service.Config{Name: name})
	if err != nil {
		return true, err
	}
	if err := svc.Uninstall(); err != nil {
		return true, fmt.Errorf("systemd: uninstall %s: %w", name, err)
	}
	return true, nil
}

func (a *SystemdAdapter) handle(ctx context.Context, cfg *service.Config) (service.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.factory(cfg)
}

// serviceConfig carries the descriptor into kardianos. The rendered unit is
// passed as a template with no actions so it is written verbatim.
func serviceConfig(d domain.ServiceDescriptor, unit []byte) *service.Config {
	cfg := &service.Config{
		Name:             d.Name,
		DisplayName:      d.Name,
		Description:      d.Description,
		UserName:         d.User,
		WorkingDirectory: d.WorkingDir,
		EnvVars:          d.Env,
		Option: service.KeyValue{
			"SystemdScript": literalTemplate(string(unit)),
			"Restart":       d.Restart,
		},
	}
	if len(d.ExecStart) > 0 {
		cfg.Executable = d.ExecStart[0]
		cfg.Arguments = d.ExecStart[1:]
	}
	return cfg
}

// literalTemplate escapes s for text/template.
func literalTemplate(s string) string {
	return strings.ReplaceAll(s, "{{", "{{`{{`}}")
}

type noopProgram struct{}

func (noopProgram) Start(service.Service) error { return nil }
func (noopProgram) Stop(service.Service) error  { return nil }

func newSystemdService(cfg *service.Config) (service.Service, error) {
	svc, err := service.New(noopProgram{}, cfg)
	if err != nil {
		return nil, fmt.Errorf("systemd: %w", err)
	}
	if p := svc.Platform(); p != systemdPlatform {
		return nil, fmt.Errorf("systemd: unsupported init system %q", p)
	}
	return svc, nil
}
