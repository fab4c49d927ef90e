package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/irgordon/trafficx/installer/internal/adapters"
	"github.com/irgordon/trafficx/installer/internal/config"
	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/core/services"
	"github.com/irgordon/trafficx/installer/internal/db/sqlite"
	"github.com/irgordon/trafficx/installer/internal/identity"
	"github.com/irgordon/trafficx/installer/internal/logging"
	"github.com/irgordon/trafficx/installer/internal/telemetry"
	"github.com/irgordon/trafficx/installer/internal/worker"
	"github.com/irgordon/trafficx/installer/internal/workers"
)

// app is the fully wired installer for one command invocation.
type app struct {
	logger *slog.Logger
	closer io.Closer
	worker *worker.DeploymentWorker
}

func newApp(confirm func(string) bool) (*app, error) {
	// --- 1. Configuration & Logging ---
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}
	if !noLogFile {
		opts.File = cfg.InstallerLogFile()
	}
	logger, closer, err := logging.New(os.Stderr, opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	// --- 2. Host Adapters ---
	exec := adapters.NewShellExecutor(logger)
	systemd := adapters.NewSystemdAdapter(adapters.SystemdUnitDir, nil, logger)
	packages := adapters.NewAptPackageManager(exec)
	scheduler := adapters.NewCrontabScheduler(exec)
	resolver := identity.NewResolver(exec, logger)
	state := adapters.NewYAMLStateStore(cfg.StatePath())

	self, err := os.Executable()
	if err != nil {
		self = "trafficx"
	}
	tool := adapters.NewAcmeTool(cfg.ACMEEmail, scheduler, fmt.Sprintf("17 3 * * * %s renew --no-log-file", self), logger)

	// --- 3. Services ---
	certs := services.NewSslService(services.SslDeps{
		Tool:       tool,
		Strategies: tool.Strategies(),
		Homes:      resolver,
		Firewall:   adapters.NewUfwFirewall(exec),
		Reclaimer:  adapters.NewPortReclaimer(systemd, logger),
		Inspect:    adapters.ReadCertificateInfo,
	}, cfg.CertDir(), cfg.CADirURL, logger)

	pipeline := worker.Pipeline{
		Identity: resolver,
		Artifacts: services.NewArtifactService(services.ArtifactSource{
			RepoURL:       cfg.RepoURL,
			RepoName:      cfg.RepoName(),
			DefaultBranch: cfg.DefaultBranch,
		}, adapters.NewArchiveClient(nil, logger), logger),
		Runtime:   services.NewRuntimeService(exec, packages, logger),
		Certs:     certs,
		Lifecycle: services.NewLifecycleService(systemd, logger),
		Uninstall: services.NewUninstallService(services.UninstallDeps{
			Services:  systemd,
			Tool:      tool,
			Scheduler: scheduler,
			Packages:  packages,
			State:     state,
			Scope:     resolver,
			Confirm:   confirm,
		}, logger),
		Database: sqlite.NewTrafficRepository(),
		Health:   workers.NewHealthProbe(logger),
		State:    state,
	}

	return &app{
		logger: logger,
		closer: closer,
		worker: worker.NewDeploymentWorker(cfg, pipeline, logger),
	}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

// journal returns a fresh run journal that mirrors every step into the log.
func (a *app) journal() *telemetry.Journal {
	j := telemetry.NewJournal()
	j.Subscribe(func(s telemetry.Step) {
		attrs := []any{slog.String("step", s.Name), slog.String("outcome", string(s.Outcome)), slog.String("run_id", j.RunID)}
		switch s.Outcome {
		case telemetry.OutcomeFailed, telemetry.OutcomeWarning:
			a.logger.Warn("Step finished", append(attrs, slog.Any("error", s.Err))...)
		default:
			a.logger.Debug("Step finished", attrs...)
		}
	})
	return j
}

func (a *app) install(ctx context.Context, out io.Writer, req worker.InstallRequest) error {
	report, err := a.worker.Install(ctx, req, a.journal())
	if err != nil {
		fmt.Fprintf(out, "❌ Install failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "✅ Traffic-X installed")
	fmt.Fprintf(out, "   URL:         %s\n", report.URL)
	fmt.Fprintf(out, "   Directory:   %s\n", report.Artifact.ExtractedPath)
	fmt.Fprintf(out, "   Certificate: %s\n", report.Certificate.State)
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "⚠️  %s\n", w)
	}
	return nil
}

func (a *app) uninstall(ctx context.Context, out io.Writer) error {
	j := a.journal()
	err := a.worker.UninstallAll(ctx, j)
	if errors.Is(err, domain.ErrUninstallDeclined) {
		fmt.Fprintln(out, "Uninstall cancelled; nothing was removed.")
		return nil
	}

	for _, s := range j.Steps() {
		fmt.Fprintf(out, "  %-45s %s\n", s.Name, s.Outcome)
	}
	if err != nil {
		fmt.Fprintf(out, "❌ Uninstall aborted:\n%v\n", err)
		return err
	}
	// removal is best-effort; leftovers are reported, not fatal
	if stepErr := j.Err(); stepErr != nil {
		fmt.Fprintf(out, "⚠️  Traffic-X removed, some items need manual cleanup:\n%v\n", stepErr)
		return nil
	}
	fmt.Fprintln(out, "✅ Traffic-X removed")
	return nil
}

func (a *app) renew(ctx context.Context, out io.Writer) error {
	renewed, err := a.worker.Renew(ctx, a.journal())
	if err != nil {
		return err
	}
	if renewed {
		fmt.Fprintln(out, "Certificate renewed and service restarted")
	} else {
		fmt.Fprintln(out, "Certificate is not due for renewal")
	}
	return nil
}
