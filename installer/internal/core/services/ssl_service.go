package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/core/utils"
)

// RenewBefore is how close to expiry a certificate may get before renewal.
const RenewBefore = 30 * 24 * time.Hour

// ChallengePorts must be reachable from the CA during issuance.
var ChallengePorts = []int{80, 443}

// HomeResolver lists the homes an issuance tool installation may live under.
type HomeResolver interface {
	HomeCandidates(owner domain.Identity) []string
}

type SslDeps struct {
	Tool       domain.IssuanceTool
	Strategies []domain.IssuanceStrategy
	Homes      HomeResolver
	Firewall   domain.Firewall
	Reclaimer  domain.PortReclaimer
	Inspect    func(certPath string) (*domain.CertificateInfo, error)
}

// SslService reuses or issues the certificate for the install target.
// Issuance walks the strategies in order and stops at the first success;
// exhausting them is a soft failure and the service is deployed without TLS.
type SslService struct {
	deps    SslDeps
	certDir string
	caURL   string
	now     func() time.Time
	logger  *slog.Logger
}

func NewSslService(deps SslDeps, certDir, caURL string, logger *slog.Logger) *SslService {
	return &SslService{
		deps:    deps,
		certDir: certDir,
		caURL:   caURL,
		now:     time.Now,
		logger:  logger,
	}
}

// Record returns the expected file locations for domainName in state NoCert.
func (s *SslService) Record(domainName string) domain.CertificateRecord {
	return domain.CertificateRecord{
		Domain:   domainName,
		CertPath: filepath.Join(s.certDir, domainName+".cer"),
		KeyPath:  filepath.Join(s.certDir, domainName+".key"),
		State:    domain.CertNoCert,
	}
}

// Ensure returns a Reused record when both files already exist, without any
// network action. Otherwise it issues. The returned error is only ever a soft
// ErrAllStrategiesFailed.
func (s *SslService) Ensure(ctx context.Context, target domain.InstallTarget) (domain.CertificateRecord, error) {
	rec := s.Record(target.Domain)
	if fileExists(rec.CertPath) && fileExists(rec.KeyPath) {
		s.logger.Info("Reusing existing certificate",
			slog.String("domain", target.Domain),
			slog.String("cert", rec.CertPath))
		rec.State = domain.CertReused
		return rec, nil
	}
	return s.issue(ctx, target, rec)
}

// Renew reissues the certificate when it expires within RenewBefore or
// cannot be read. renewed is false when nothing had to be done.
func (s *SslService) Renew(ctx context.Context, target domain.InstallTarget) (rec domain.CertificateRecord, renewed bool, err error) {
	rec = s.Record(target.Domain)
	if s.deps.Inspect != nil && fileExists(rec.KeyPath) {
		info, err := s.deps.Inspect(rec.CertPath)
		if err == nil && info.NotAfter.After(s.now().Add(RenewBefore)) {
			s.logger.Info("Certificate is not due for renewal",
				slog.String("domain", target.Domain),
				slog.Time("not_after", info.NotAfter))
			rec.State = domain.CertReused
			return rec, false, nil
		}
		if err != nil {
			s.logger.Warn("Certificate unreadable, reissuing", slog.Any("error", err))
		}
	}

	rec, err = s.issue(ctx, target, rec)
	return rec, rec.State == domain.CertIssued, err
}

func (s *SslService) issue(ctx context.Context, target domain.InstallTarget, rec domain.CertificateRecord) (domain.CertificateRecord, error) {
	rec.State = domain.CertIssuing
	s.logger.Info("Issuing certificate", slog.String("domain", target.Domain))

	s.prepareTool(ctx, target)
	s.prepareHost(ctx)

	for _, strategy := range s.deps.Strategies {
		bundle, err := strategy.Issue(ctx, target.Domain)
		if err != nil {
			s.logger.Warn("Issuance strategy failed, trying next",
				slog.String("strategy", strategy.Name()),
				slog.Any("error", err))
			continue
		}

		if err := s.store(ctx, rec, bundle, target.Owner()); err != nil {
			s.logger.Error("Issued certificate could not be written", slog.Any("error", err))
			break
		}

		rec.Issued = true
		rec.State = domain.CertIssued
		rec.Strategy = strategy.Name()
		s.logger.Info("Certificate issued",
			slog.String("domain", target.Domain),
			slog.String("strategy", strategy.Name()))
		return rec, nil
	}

	rec.State = domain.CertFailed
	return rec, fmt.Errorf("%w for %s", domain.ErrAllStrategiesFailed, target.Domain)
}

// prepareTool installs, locates and configures the issuance tool. Every step
// is best-effort; a missing tool surfaces later as failing strategies.
func (s *SslService) prepareTool(ctx context.Context, target domain.InstallTarget) {
	if s.deps.Tool == nil {
		return
	}
	utils.NonCritical(ctx, s.logger, "install issuance tool", func(ctx context.Context) error {
		return s.deps.Tool.Install(ctx, target.HomeDir)
	})

	var homes []string
	if s.deps.Homes != nil {
		homes = s.deps.Homes.HomeCandidates(target.Owner())
	} else {
		homes = []string{target.HomeDir}
	}
	utils.NonCritical(ctx, s.logger, "locate issuance tool", func(ctx context.Context) error {
		dir, err := s.deps.Tool.Locate(homes)
		if err == nil {
			s.logger.Debug("Issuance tool located", slog.String("path", dir))
		}
		return err
	})

	if s.caURL != "" {
		utils.NonCritical(ctx, s.logger, "set default CA", func(ctx context.Context) error {
			return s.deps.Tool.SetDefaultCA(ctx, s.caURL)
		})
	}
}

func (s *SslService) prepareHost(ctx context.Context) {
	if s.deps.Firewall != nil && s.deps.Firewall.Available() {
		for _, port := range ChallengePorts {
			utils.NonCritical(ctx, s.logger, fmt.Sprintf("open port %d", port), func(ctx context.Context) error {
				return s.deps.Firewall.Allow(ctx, port)
			})
		}
	} else {
		s.logger.Info("No firewall tool found, skipping port opening")
	}

	if s.deps.Reclaimer != nil {
		utils.NonCritical(ctx, s.logger, "release port 80", func(ctx context.Context) error {
			return s.deps.Reclaimer.Release(ctx, 80)
		})
	}
}

func (s *SslService) store(ctx context.Context, rec domain.CertificateRecord, bundle *domain.IssuedBundle, owner domain.Identity) error {
	if err := os.MkdirAll(s.certDir, 0o755); err != nil {
		return err
	}
	if err := writeFileMode(rec.CertPath, bundle.Certificate, 0o644); err != nil {
		return err
	}
	if err := writeFileMode(rec.KeyPath, bundle.PrivateKey, 0o600); err != nil {
		return err
	}

	// the service runs as the owner and must read the key
	utils.NonCritical(ctx, s.logger, "chown certificates", func(context.Context) error {
		return errors.Join(
			os.Chown(s.certDir, owner.UID, owner.GID),
			os.Chown(rec.CertPath, owner.UID, owner.GID),
			os.Chown(rec.KeyPath, owner.UID, owner.GID),
		)
	})
	return nil
}

func writeFileMode(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
