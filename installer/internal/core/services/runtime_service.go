package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/core/utils"
)

// VenvDir is the virtual environment directory inside the install dir.
const VenvDir = "venv"

// SystemPackages are the host packages the runtime and renewal job need.
var SystemPackages = []string{"python3", "python3-venv", "python3-pip", "cron"}

// FallbackRequirements is installed when the bundle ships no requirements.txt.
var FallbackRequirements = []string{
	"Flask==3.0.3",
	"Werkzeug==3.0.3",
	"gunicorn==22.0.0",
	"psutil==5.9.8",
	"requests==2.32.3",
}

type RuntimeService struct {
	exec     domain.Executor
	packages domain.PackageManager
	logger   *slog.Logger
}

func NewRuntimeService(exec domain.Executor, packages domain.PackageManager, logger *slog.Logger) *RuntimeService {
	return &RuntimeService{
		exec:     exec,
		packages: packages,
		logger:   logger,
	}
}

// PrepareSystem installs SystemPackages when apt is available.
func (s *RuntimeService) PrepareSystem(ctx context.Context) error {
	if s.packages == nil || !s.packages.Available() {
		return errors.New("no supported package manager")
	}
	return s.packages.Install(ctx, SystemPackages...)
}

// Provision recreates the virtual environment under installDir and installs
// the application's dependencies into it.
func (s *RuntimeService) Provision(ctx context.Context, installDir string) error {
	venv := filepath.Join(installDir, VenvDir)
	if err := os.RemoveAll(venv); err != nil {
		return fmt.Errorf("%w: remove old venv: %v", domain.ErrRuntimeProvision, err)
	}

	s.logger.Info("Creating virtual environment", slog.String("path", venv))
	if _, err := s.exec.Run(ctx, domain.Command{Name: "python3", Args: []string{"-m", "venv", venv}, Dir: installDir}); err != nil {
		return fmt.Errorf("%w: create venv: %v", domain.ErrRuntimeProvision, err)
	}

	pip := filepath.Join(venv, "bin", "pip")
	utils.NonCritical(ctx, s.logger, "upgrade pip", func(ctx context.Context) error {
		_, err := s.exec.Run(ctx, domain.Command{Name: pip, Args: []string{"install", "--upgrade", "pip"}, Dir: installDir})
		return err
	})

	args := []string{"install"}
	reqs := filepath.Join(installDir, "requirements.txt")
	if _, err := os.Stat(reqs); err == nil {
		s.logger.Info("Installing requirements.txt")
		args = append(args, "-r", reqs)
	} else {
		s.logger.Info("No requirements.txt, installing pinned fallback set")
		args = append(args, FallbackRequirements...)
	}

	if _, err := s.exec.Run(ctx, domain.Command{Name: pip, Args: args, Dir: installDir}); err != nil {
		return fmt.Errorf("%w: install dependencies: %v", domain.ErrRuntimeProvision, err)
	}
	return nil
}
