package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPort is used only when the operator leaves the port unspecified.
	DefaultPort = 5000
	// LatestVersion resolves to the default branch archive.
	LatestVersion = "latest"
)

var validate = validator.New()

// Identity is the resolved non-elevated owner of the deployment.
type Identity struct {
	Username string
	HomeDir  string
	UID      int
	GID      int
}

// InstallTarget is the immutable description of one deployment.
// 🛡️ It is passed by value between stages; no stage mutates it.
type InstallTarget struct {
	Username string `validate:"required,max=64"`
	HomeDir  string `validate:"required,startswith=/"`
	UID      int    `validate:"min=0"`
	GID      int    `validate:"min=0"`
	Domain   string `validate:"required,hostname_rfc1123,max=253"`
	Port     int    `validate:"min=1,max=65535"`
	Version  string `validate:"required,max=128,excludesall=\\,excludes=.."`
}

// NewInstallTarget applies the operator defaults and validates the result.
func NewInstallTarget(id Identity, domainName string, port int, version string) (InstallTarget, error) {
	if port == 0 {
		port = DefaultPort
	}

	version = strings.TrimSpace(version)
	if version == "" {
		version = LatestVersion
	}

	t := InstallTarget{
		Username: id.Username,
		HomeDir:  id.HomeDir,
		UID:      id.UID,
		GID:      id.GID,
		Domain:   strings.ToLower(strings.TrimSpace(domainName)),
		Port:     port,
		Version:  version,
	}

	if err := t.Validate(); err != nil {
		return InstallTarget{}, err
	}
	return t, nil
}

// Validate checks the struct tags before the target reaches any stage.
func (t InstallTarget) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return nil
}

// IsLatest reports whether the version specifier tracks the default branch.
func (t InstallTarget) IsLatest() bool {
	return t.Version == LatestVersion
}

// Owner returns the identity the deployment belongs to.
func (t InstallTarget) Owner() Identity {
	return Identity{Username: t.Username, HomeDir: t.HomeDir, UID: t.UID, GID: t.GID}
}
