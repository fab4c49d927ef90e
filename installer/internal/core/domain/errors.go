package domain

import "errors"

// Fatal errors abort the run with exit status 1.
var (
	ErrInvalidHome        = errors.New("home directory does not exist")
	ErrNoUnprivilegedUser = errors.New("no unprivileged invoking user found")
	ErrInvalidTarget      = errors.New("invalid install target")
	ErrArtifactDownload   = errors.New("artifact download failed")
	ErrArtifactLayout     = errors.New("artifact layout is not recognized")
	ErrRuntimeProvision   = errors.New("runtime provisioning failed")
	ErrServiceInstall     = errors.New("service installation failed")
	ErrUninstallDeclined  = errors.New("uninstall not confirmed")
)

// Soft failures are reported as warnings and never abort the run.
var (
	ErrAllStrategiesFailed = errors.New("all certificate issuance strategies failed")
	ErrDatabaseMissing     = errors.New("database file does not exist")
	ErrToolNotInstalled    = errors.New("issuance tool is not installed")
	ErrNotInstalled        = errors.New("no installation record found")
)
