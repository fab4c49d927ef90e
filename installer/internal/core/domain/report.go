package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Artifact is the downloaded application bundle for one install run.
type Artifact struct {
	VersionSpec   string
	ResolvedURL   string
	ExtractedPath string
}

// InstallReport is what the operator sees once an install finishes.
type InstallReport struct {
	RunID       string
	Target      InstallTarget
	Artifact    Artifact
	Certificate CertificateRecord
	URL         string
	Warnings    []string
}

// ServiceURL renders the externally reachable URL for the given scheme.
func ServiceURL(scheme, domainName string, port int) string {
	return fmt.Sprintf("%s://%s:%s", scheme, domainName, strconv.Itoa(port))
}

// InstallState is the persisted record of the last successful install.
type InstallState struct {
	Username    string    `yaml:"username"`
	HomeDir     string    `yaml:"home_dir"`
	Domain      string    `yaml:"domain"`
	Port        int       `yaml:"port"`
	Version     string    `yaml:"version"`
	SSL         bool      `yaml:"ssl"`
	InstalledAt time.Time `yaml:"installed_at"`
	RunID       string    `yaml:"run_id"`
}

// StateStore persists InstallState between runs.
type StateStore interface {
	Load() (*InstallState, error)
	Save(state InstallState) error
	Remove() (found bool, err error)
}
