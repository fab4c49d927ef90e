package domain

import (
	"context"
	"time"
)

// CertState is a position in the certificate state machine.
type CertState string

const (
	CertNoCert  CertState = "no_cert"
	CertReused  CertState = "reused"
	CertIssuing CertState = "issuing"
	CertIssued  CertState = "issued"
	CertFailed  CertState = "failed"
)

// CertificateRecord describes the certificate files for one domain.
// A record is valid only when both files exist on disk.
type CertificateRecord struct {
	Domain   string
	CertPath string
	KeyPath  string
	Issued   bool
	State    CertState
	Strategy string // name of the strategy that produced it, empty unless Issued
}

// SSLContext is the certificate/key pair handed to the service process.
type SSLContext struct {
	CertFile string
	KeyFile  string
}

// SSLContext returns nil unless the record ended in Issued or Reused.
func (r CertificateRecord) SSLContext() *SSLContext {
	if r.State != CertIssued && r.State != CertReused {
		return nil
	}
	return &SSLContext{CertFile: r.CertPath, KeyFile: r.KeyPath}
}

// Scheme is the externally reported protocol for this record.
func (r CertificateRecord) Scheme() string {
	if r.SSLContext() != nil {
		return "https"
	}
	return "http"
}

// IssuedBundle carries the PEM bytes returned by a successful strategy.
type IssuedBundle struct {
	Certificate []byte
	PrivateKey  []byte
}

// IssuanceStrategy is one way of proving control over a domain.
type IssuanceStrategy interface {
	Name() string
	Issue(ctx context.Context, domainName string) (*IssuedBundle, error)
}

// IssuanceTool is the installable ACME client state shared by all strategies.
type IssuanceTool interface {
	// Install is idempotent and installs into <home>.
	Install(ctx context.Context, home string) error
	// Locate picks the first candidate home that holds an installation.
	Locate(homes []string) (string, error)
	SetDefaultCA(ctx context.Context, directoryURL string) error
	// Uninstall removes the installation under <home>; found=false when absent.
	Uninstall(ctx context.Context, home string) (found bool, err error)
}

// CertificateInfo is the subset of x509 data renewal decisions need.
type CertificateInfo struct {
	NotAfter time.Time
}
