package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/telemetry"
)

// IdentityScope lists the homes and users that may hold per-user leftovers.
type IdentityScope interface {
	HomeCandidates(owner domain.Identity) []string
	Usernames(owner domain.Identity) []string
}

// UninstallPaths are the host locations an install writes to.
type UninstallPaths struct {
	ServiceName string
	InstallDir  string
	CertDir     string
	LogPath     string
	// DataDir holds the certificate directory and the install record.
	DataDir string
	// InstallerLogs matches the installer's own log and its rotated backups.
	InstallerLogs string
}

type UninstallDeps struct {
	Services  domain.ServiceManager
	Tool      domain.IssuanceTool
	Scheduler domain.Scheduler
	Packages  domain.PackageManager
	State     domain.StateStore
	Scope     IdentityScope
	// Confirm asks the operator a yes/no question.
	Confirm func(question string) bool
}

// UninstallService removes everything an install created. Every step is
// best-effort and journaled; later steps run even when earlier ones fail, so
// it is safe on a host where the install never completed.
type UninstallService struct {
	deps   UninstallDeps
	logger *slog.Logger
}

func NewUninstallService(deps UninstallDeps, logger *slog.Logger) *UninstallService {
	return &UninstallService{deps: deps, logger: logger}
}

// Run asks for confirmation and then removes the installation of owner.
// Failed steps are journaled (see Journal.Err) and do not fail the run;
// ErrUninstallDeclined means nothing was touched.
func (s *UninstallService) Run(ctx context.Context, owner domain.Identity, paths UninstallPaths, journal *telemetry.Journal) error {
	if !s.confirm(fmt.Sprintf("Remove %s and all of its data?", paths.ServiceName)) {
		return domain.ErrUninstallDeclined
	}
	s.logger.Info("Uninstalling", slog.String("service", paths.ServiceName), slog.String("run_id", journal.RunID))

	name := paths.ServiceName
	svc := s.deps.Services

	s.step(journal, "stop service", func() (bool, error) {
		active, err := svc.IsActive(ctx, name)
		if err != nil || !active {
			return false, err
		}
		return true, svc.Stop(ctx, name)
	})
	// disable, remove descriptor, reload the init system
	s.step(journal, "remove service", func() (bool, error) {
		return svc.Uninstall(ctx, name)
	})

	s.step(journal, "remove install directory", func() (bool, error) { return removePath(paths.InstallDir) })
	s.step(journal, "remove certificates", func() (bool, error) { return removePath(paths.CertDir) })

	if s.deps.Tool != nil {
		for _, home := range s.homes(owner) {
			s.step(journal, "remove issuance tool from "+home, func() (bool, error) {
				return s.deps.Tool.Uninstall(ctx, home)
			})
		}
	}
	if s.deps.Scheduler != nil {
		for _, user := range s.users(owner) {
			s.step(journal, "remove renewal job for "+user, func() (bool, error) {
				return s.deps.Scheduler.Remove(ctx, user, domain.RenewMarker)
			})
		}
	}

	s.step(journal, "remove log file", func() (bool, error) { return removePath(paths.LogPath) })
	if s.deps.State != nil {
		s.step(journal, "remove install record", s.deps.State.Remove)
	}
	s.step(journal, "remove data directory", func() (bool, error) { return removePath(paths.DataDir) })

	s.removeDependencies(ctx, journal)

	// last, so the rest of this run is still logged
	s.step(journal, "remove installer logs", func() (bool, error) { return removeGlob(paths.InstallerLogs) })

	if err := journal.Err(); err != nil {
		s.logger.Warn("Uninstall finished with failed steps", slog.Any("error", err))
	}
	return nil
}

func (s *UninstallService) removeDependencies(ctx context.Context, journal *telemetry.Journal) {
	const name = "remove system dependencies"
	if s.deps.Packages == nil || !s.deps.Packages.Available() {
		journal.Record(name, telemetry.OutcomeSkipped, nil)
		return
	}
	if !s.confirm(fmt.Sprintf("Also remove system packages %v? Other software may depend on them.", SystemPackages)) {
		journal.Record(name, telemetry.OutcomeSkipped, nil)
		return
	}
	s.step(journal, name, func() (bool, error) {
		return true, s.deps.Packages.Remove(ctx, SystemPackages...)
	})
}

// step runs fn and journals done, not found or failed.
func (s *UninstallService) step(journal *telemetry.Journal, name string, fn func() (bool, error)) {
	found, err := fn()
	outcome := telemetry.OutcomeDone
	switch {
	case err != nil:
		outcome = telemetry.OutcomeFailed
		s.logger.Warn("Uninstall step failed", slog.String("step", name), slog.Any("error", err))
	case !found:
		outcome = telemetry.OutcomeNotFound
	}
	journal.Record(name, outcome, err)
}

func (s *UninstallService) confirm(question string) bool {
	return s.deps.Confirm != nil && s.deps.Confirm(question)
}

// homes lists where the issuance tool may have been installed.
func (s *UninstallService) homes(owner domain.Identity) []string {
	if s.deps.Scope == nil {
		return []string{owner.HomeDir}
	}
	return s.deps.Scope.HomeCandidates(owner)
}

func (s *UninstallService) users(owner domain.Identity) []string {
	if s.deps.Scope == nil {
		return []string{owner.Username}
	}
	return s.deps.Scope.Usernames(owner)
}

func removeGlob(pattern string) (bool, error) {
	if pattern == "" {
		return false, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return false, err
	}
	var errs []error
	for _, m := range matches {
		errs = append(errs, os.Remove(m))
	}
	return len(matches) > 0, errors.Join(errs...)
}

func removePath(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return true, os.RemoveAll(path)
}
