package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/irgordon/trafficx/installer/internal/config"
	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/core/services"
	"github.com/irgordon/trafficx/installer/internal/core/utils"
	"github.com/irgordon/trafficx/installer/internal/telemetry"
	"github.com/irgordon/trafficx/installer/internal/workers"
)

// IdentityResolver finds the non-elevated owner of the deployment.
type IdentityResolver interface {
	Resolve(ctx context.Context) (domain.Identity, error)
	// Lookup resolves a recorded owner by name.
	Lookup(ctx context.Context, username string) (domain.Identity, error)
}

// Pipeline is the set of stages an install runs through.
type Pipeline struct {
	Identity  IdentityResolver
	Artifacts *services.ArtifactService
	Runtime   *services.RuntimeService
	Certs     *services.SslService
	Lifecycle *services.LifecycleService
	Uninstall *services.UninstallService
	Database  domain.DatabaseProbe
	Health    domain.HealthProbe
	State     domain.StateStore
}

// InstallRequest is what the operator asked for. Zero values take defaults.
type InstallRequest struct {
	Domain  string
	Port    int
	Version string
}

// DeploymentWorker drives one install, renewal or uninstall run from start to
// finish. Stages run strictly in sequence; a fatal stage error aborts the run.
type DeploymentWorker struct {
	cfg      *config.Config
	pipeline Pipeline
	logger   *slog.Logger
	now      func() time.Time
}

func NewDeploymentWorker(cfg *config.Config, pipeline Pipeline, logger *slog.Logger) *DeploymentWorker {
	return &DeploymentWorker{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
	}
}

// Install resolves the owner, fetches and provisions the application,
// secures it when possible and starts the service.
func (w *DeploymentWorker) Install(ctx context.Context, req InstallRequest, journal *telemetry.Journal) (*domain.InstallReport, error) {
	logger := w.logger.With(slog.String("run_id", journal.RunID))

	owner, err := w.pipeline.Identity.Resolve(ctx)
	if err != nil {
		return nil, w.fail(journal, "resolve identity", err)
	}
	journal.Record("resolve identity", telemetry.OutcomeDone, nil)

	target, err := domain.NewInstallTarget(owner, req.Domain, req.Port, req.Version)
	if err != nil {
		return nil, w.fail(journal, "validate target", err)
	}
	logger.Info("Starting install",
		slog.String("domain", target.Domain),
		slog.Int("port", target.Port),
		slog.String("version", target.Version),
		slog.String("user", target.Username))

	report := &domain.InstallReport{RunID: journal.RunID, Target: target}

	if utils.NonCritical(ctx, logger, "install system packages", w.pipeline.Runtime.PrepareSystem) {
		journal.Record("install system packages", telemetry.OutcomeDone, nil)
	} else {
		journal.Record("install system packages", telemetry.OutcomeWarning, nil)
	}

	installDir := w.cfg.InstallDir(target.HomeDir)
	report.Artifact, err = w.pipeline.Artifacts.Fetch(ctx, target.Version, installDir)
	if err != nil {
		return report, w.fail(journal, "fetch artifact", err)
	}
	journal.Record("fetch artifact", telemetry.OutcomeDone, nil)

	if err := w.pipeline.Runtime.Provision(ctx, installDir); err != nil {
		return report, w.fail(journal, "provision runtime", err)
	}
	journal.Record("provision runtime", telemetry.OutcomeDone, nil)

	utils.NonCritical(ctx, logger, "chown install directory", func(context.Context) error {
		return utils.ChownTree(installDir, target.UID, target.GID)
	})

	report.Certificate, err = w.pipeline.Certs.Ensure(ctx, target)
	if err != nil {
		w.warn(journal, report, "certificate", err)
	} else {
		journal.Record("certificate", telemetry.OutcomeDone, nil)
	}
	ssl := report.Certificate.SSLContext()

	desc := services.BuildDescriptor(w.unitSettings(installDir), target, ssl)
	if err := w.pipeline.Lifecycle.Deploy(ctx, desc, target.Owner()); err != nil {
		return report, w.fail(journal, "install service", err)
	}
	journal.Record("install service", telemetry.OutcomeDone, nil)

	url, sslWarning := services.Reachability(target, ssl)
	report.URL = url
	if sslWarning != "" {
		report.Warnings = append(report.Warnings, sslWarning)
	}

	if w.pipeline.Database != nil {
		if err := w.pipeline.Database.Probe(ctx, w.cfg.DBPath); err != nil {
			w.warn(journal, report, "database", err)
		} else {
			journal.Record("database", telemetry.OutcomeDone, nil)
		}
	}

	if w.pipeline.Health != nil {
		if err := w.pipeline.Health.Wait(ctx, workers.LoopbackURL(report.Certificate.Scheme(), target.Port)); err != nil {
			w.warn(journal, report, "health check", err)
		} else {
			journal.Record("health check", telemetry.OutcomeDone, nil)
		}
	}

	w.saveState(ctx, logger, target, ssl != nil, journal.RunID)

	logger.Info("Install finished", slog.String("url", report.URL), slog.Int("warnings", len(report.Warnings)))
	return report, nil
}

// Renew refreshes the certificate of the recorded install and, when a new one
// was issued, rewrites and restarts the service so it serves it. It runs from
// root's crontab, so the owner comes from the install record, never from the
// invoking user.
func (w *DeploymentWorker) Renew(ctx context.Context, journal *telemetry.Journal) (bool, error) {
	st, err := w.pipeline.State.Load()
	if err != nil {
		return false, w.fail(journal, "load install record", err)
	}

	owner, err := w.pipeline.Identity.Lookup(ctx, st.Username)
	if err != nil {
		return false, w.fail(journal, "resolve owner", err)
	}
	target, err := domain.NewInstallTarget(owner, st.Domain, st.Port, st.Version)
	if err != nil {
		return false, w.fail(journal, "validate target", err)
	}

	rec, renewed, err := w.pipeline.Certs.Renew(ctx, target)
	if err != nil {
		journal.Record("renew certificate", telemetry.OutcomeFailed, err)
		return false, err
	}
	if !renewed {
		journal.Record("renew certificate", telemetry.OutcomeSkipped, nil)
		return false, nil
	}
	journal.Record("renew certificate", telemetry.OutcomeDone, nil)

	installDir := w.cfg.InstallDir(target.HomeDir)
	desc := services.BuildDescriptor(w.unitSettings(installDir), target, rec.SSLContext())
	if err := w.pipeline.Lifecycle.Deploy(ctx, desc, target.Owner()); err != nil {
		return true, w.fail(journal, "restart service", err)
	}
	journal.Record("restart service", telemetry.OutcomeDone, nil)

	w.saveState(ctx, w.logger, target, true, journal.RunID)
	return true, nil
}

// UninstallAll removes the recorded install, or the resolved owner's when no
// record survives.
func (w *DeploymentWorker) UninstallAll(ctx context.Context, journal *telemetry.Journal) error {
	var owner domain.Identity
	if st, err := w.pipeline.State.Load(); err == nil {
		owner = domain.Identity{Username: st.Username, HomeDir: st.HomeDir}
	} else {
		id, err := w.pipeline.Identity.Resolve(ctx)
		if err != nil {
			return w.fail(journal, "resolve identity", err)
		}
		owner = id
	}

	paths := services.UninstallPaths{
		ServiceName: w.cfg.ServiceName,
		InstallDir:  w.cfg.InstallDir(owner.HomeDir),
		CertDir:     w.cfg.CertDir(),
		LogPath:     w.cfg.LogFile(),
		DataDir:     w.cfg.DataDir(),

		InstallerLogs: w.cfg.InstallerLogGlob(),
	}
	return w.pipeline.Uninstall.Run(ctx, owner, paths, journal)
}

func (w *DeploymentWorker) unitSettings(installDir string) services.UnitSettings {
	return services.UnitSettings{
		Name:        w.cfg.ServiceName,
		Description: w.cfg.Description,
		InstallDir:  installDir,
		LogPath:     w.cfg.LogFile(),
		DBPath:      w.cfg.DBPath,
	}
}

func (w *DeploymentWorker) saveState(ctx context.Context, logger *slog.Logger, target domain.InstallTarget, ssl bool, runID string) {
	if w.pipeline.State == nil {
		return
	}
	utils.NonCritical(ctx, logger, "save install record", func(context.Context) error {
		return w.pipeline.State.Save(domain.InstallState{
			Username:    target.Username,
			HomeDir:     target.HomeDir,
			Domain:      target.Domain,
			Port:        target.Port,
			Version:     target.Version,
			SSL:         ssl,
			InstalledAt: w.now().UTC(),
			RunID:       runID,
		})
	})
}

func (w *DeploymentWorker) warn(journal *telemetry.Journal, report *domain.InstallReport, step string, err error) {
	journal.Record(step, telemetry.OutcomeWarning, err)
	report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", step, err))
}

func (w *DeploymentWorker) fail(journal *telemetry.Journal, step string, err error) error {
	journal.Record(step, telemetry.OutcomeFailed, err)
	w.logger.Error("Run aborted", slog.String("step", step), slog.Any("error", err))
	return fmt.Errorf("%s: %w", step, err)
}
