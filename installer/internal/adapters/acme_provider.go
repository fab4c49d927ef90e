package adapters

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/challenge/tlsalpn01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

const (
	// LegoDirName is the account directory created under a user's home.
	LegoDirName = ".lego"

	accountKeyFile  = "account.key"
	accountFile     = "account.json"
	caDirectoryFile = "ca"
)

// AcmeAccount is the ACME registration persisted in the account directory.
type AcmeAccount struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration,omitempty"`
	key          crypto.PrivateKey
}

func (a *AcmeAccount) GetEmail() string                        { return a.Email }
func (a *AcmeAccount) GetRegistration() *registration.Resource { return a.Registration }
func (a *AcmeAccount) GetPrivateKey() crypto.PrivateKey        { return a.key }

// AcmeTool is the local ACME client installation: an account key and
// registration under <home>/.lego plus the renewal job that keeps
// certificates fresh.
type AcmeTool struct {
	email     string
	scheduler domain.Scheduler
	renewLine string
	logger    *slog.Logger

	home  string
	caURL string
}

func NewAcmeTool(email string, scheduler domain.Scheduler, renewLine string, logger *slog.Logger) *AcmeTool {
	return &AcmeTool{
		email:     email,
		scheduler: scheduler,
		renewLine: renewLine,
		logger:    logger,
	}
}

// Dir is the account directory for home.
func (t *AcmeTool) Dir(home string) string {
	return filepath.Join(home, LegoDirName)
}

// Install creates the account key and record when missing and schedules
// renewal. Running it again keeps the existing key.
func (t *AcmeTool) Install(ctx context.Context, home string) error {
	dir := t.Dir(home)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	keyPath := filepath.Join(dir, accountKeyFile)
	if _, err := os.Stat(keyPath); errors.Is(err, os.ErrNotExist) {
		key, err := certcrypto.GeneratePrivateKey(certcrypto.EC256)
		if err != nil {
			return fmt.Errorf("generate account key: %w", err)
		}
		if err := os.WriteFile(keyPath, certcrypto.PEMEncode(key), 0o600); err != nil {
			return fmt.Errorf("write account key: %w", err)
		}
		t.logger.Info("Created ACME account key", slog.String("path", keyPath))
	}

	if _, err := os.Stat(filepath.Join(dir, accountFile)); errors.Is(err, os.ErrNotExist) {
		if err := t.writeAccount(dir, &AcmeAccount{Email: t.email}); err != nil {
			return err
		}
	}
	t.home = home

	if t.scheduler != nil && t.renewLine != "" {
		if err := t.scheduler.Ensure(ctx, "root", domain.RenewMarker, t.renewLine); err != nil {
			return fmt.Errorf("schedule renewal: %w", err)
		}
	}
	return nil
}

// Locate returns the first home holding an account key and remembers it for
// subsequent issuance.
func (t *AcmeTool) Locate(homes []string) (string, error) {
	for _, home := range homes {
		dir := t.Dir(home)
		if _, err := os.Stat(filepath.Join(dir, accountKeyFile)); err != nil {
			continue
		}
		t.home = home
		if raw, err := os.ReadFile(filepath.Join(dir, caDirectoryFile)); err == nil && t.caURL == "" {
			t.caURL = strings.TrimSpace(string(raw))
		}
		return dir, nil
	}
	return "", domain.ErrToolNotInstalled
}

// SetDefaultCA points issuance at directoryURL and persists the choice.
func (t *AcmeTool) SetDefaultCA(_ context.Context, directoryURL string) error {
	t.caURL = directoryURL
	if t.home == "" {
		return domain.ErrToolNotInstalled
	}
	path := filepath.Join(t.Dir(t.home), caDirectoryFile)
	return os.WriteFile(path, []byte(directoryURL+"\n"), 0o600)
}

func (t *AcmeTool) Uninstall(_ context.Context, home string) (bool, error) {
	dir := t.Dir(home)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return true, err
	}
	if t.home == home {
		t.home = ""
	}
	return true, nil
}

// CADirectory is the ACME directory issuance talks to.
func (t *AcmeTool) CADirectory() string {
	if t.caURL == "" {
		return lego.LEDirectoryProduction
	}
	return t.caURL
}

// Strategies returns the challenge strategies in the order they must be tried:
// HTTP-01 on IPv4, HTTP-01 on IPv6, then TLS-ALPN-01.
func (t *AcmeTool) Strategies() []domain.IssuanceStrategy {
	return []domain.IssuanceStrategy{
		&legoStrategy{name: "http-01 standalone ipv4", tool: t, configure: func(c *lego.Client) error {
			return c.Challenge.SetHTTP01Provider(http01.NewProviderServer("0.0.0.0", "80"))
		}},
		&legoStrategy{name: "http-01 standalone ipv6", tool: t, configure: func(c *lego.Client) error {
			return c.Challenge.SetHTTP01Provider(http01.NewProviderServer("::", "80"))
		}},
		&legoStrategy{name: "tls-alpn-01", tool: t, configure: func(c *lego.Client) error {
			return c.Challenge.SetTLSALPN01Provider(tlsalpn01.NewProviderServer("", "443"))
		}},
	}
}

func (t *AcmeTool) account() (*AcmeAccount, error) {
	if t.home == "" {
		return nil, domain.ErrToolNotInstalled
	}
	dir := t.Dir(t.home)

	rawKey, err := os.ReadFile(filepath.Join(dir, accountKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read account key: %w", err)
	}
	key, err := certcrypto.ParsePEMPrivateKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("parse account key: %w", err)
	}

	acct := &AcmeAccount{Email: t.email}
	if raw, err := os.ReadFile(filepath.Join(dir, accountFile)); err == nil {
		if err := json.Unmarshal(raw, acct); err != nil {
			return nil, fmt.Errorf("parse account record: %w", err)
		}
	}
	acct.key = key
	return acct, nil
}

func (t *AcmeTool) writeAccount(dir string, acct *AcmeAccount) error {
	raw, err := json.MarshalIndent(acct, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, accountFile), raw, 0o600); err != nil {
		return fmt.Errorf("write account record: %w", err)
	}
	return nil
}

// legoStrategy runs one lego client with a single challenge solver enabled.
type legoStrategy struct {
	name      string
	tool      *AcmeTool
	configure func(*lego.Client) error
}

func (s *legoStrategy) Name() string { return s.name }

func (s *legoStrategy) Issue(ctx context.Context, domainName string) (*domain.IssuedBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acct, err := s.tool.account()
	if err != nil {
		return nil, err
	}

	cfg := lego.NewConfig(acct)
	cfg.CADirURL = s.tool.CADirectory()
	cfg.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create lego client: %w", err)
	}
	if err := s.configure(client); err != nil {
		return nil, fmt.Errorf("provider_setup_failed: %w", err)
	}

	if acct.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("failed to register ACME account: %w", err)
		}
		acct.Registration = reg
		if err := s.tool.writeAccount(s.tool.Dir(s.tool.home), acct); err != nil {
			s.tool.logger.Warn("ACME registration not persisted", slog.Any("error", err))
		}
	}

	certs, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domainName},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("acme_obtainment_failed: %w", err)
	}

	return &domain.IssuedBundle{Certificate: certs.Certificate, PrivateKey: certs.PrivateKey}, nil
}

// ReadCertificateInfo extracts the expiry of a PEM certificate on disk.
func ReadCertificateInfo(path string) (*domain.CertificateInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cert, err := certcrypto.ParsePEMCertificate(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &domain.CertificateInfo{NotAfter: cert.NotAfter}, nil
}
