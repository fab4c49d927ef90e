package adapters

import (
	"context"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// AptPackageManager drives apt-get non-interactively.
type AptPackageManager struct {
	exec domain.Executor
}

func NewAptPackageManager(exec domain.Executor) *AptPackageManager {
	return &AptPackageManager{exec: exec}
}

func (m *AptPackageManager) Available() bool {
	_, err := m.exec.LookPath("apt-get")
	return err == nil
}

func (m *AptPackageManager) Install(ctx context.Context, packages ...string) error {
	if _, err := m.apt(ctx, "update", "-q"); err != nil {
		return err
	}
	_, err := m.apt(ctx, append([]string{"install", "-y", "-q"}, packages...)...)
	return err
}

// Remove uninstalls the packages and then drops their orphaned dependencies.
func (m *AptPackageManager) Remove(ctx context.Context, packages ...string) error {
	if _, err := m.apt(ctx, append([]string{"remove", "-y", "-q"}, packages...)...); err != nil {
		return err
	}
	_, err := m.apt(ctx, "autoremove", "-y", "-q")
	return err
}

func (m *AptPackageManager) apt(ctx context.Context, args ...string) ([]byte, error) {
	return m.exec.Run(ctx, domain.Command{Name: "apt-get", Args: args, Env: aptEnv})
}
