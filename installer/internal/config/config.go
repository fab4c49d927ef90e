package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/lego"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read, when present, before the process environment is consulted.
const DefaultEnvFile = "/etc/trafficx/installer.env"

// Config holds all dynamic configuration for the installer.
// 🛡️ SLA: paths are derived here and nowhere else.
type Config struct {
	Environment string // "development" or "production"

	ServiceName   string
	Description   string
	RepoURL       string // e.g. https://github.com/<owner>/Traffic-X
	DefaultBranch string

	// ACME
	CADirURL  string
	ACMEEmail string

	// The deployed app's data source
	DBPath string

	// Host layout
	StateRoot string // certificates and install record live under <StateRoot>/<service>
	LogDir    string

	LogLevel  string
	LogFormat string // "json" or "text"
}

// Load parses the environment and applies sensible default fallbacks.
// Values already present in the process environment win over the env file.
func Load() *Config {
	_ = godotenv.Load(getEnv("TRAFFICX_ENV_FILE", DefaultEnvFile))

	env := getEnv("TRAFFICX_ENV", "production")

	// Let's Encrypt staging keeps development hosts away from production rate limits
	caDefault := lego.LEDirectoryProduction
	if env == "development" {
		caDefault = lego.LEDirectoryStaging
	}

	return &Config{
		Environment:   env,
		ServiceName:   getEnv("TRAFFICX_SERVICE_NAME", "traffic-x"),
		Description:   getEnv("TRAFFICX_DESCRIPTION", "Traffic-X web panel"),
		RepoURL:       strings.TrimRight(getEnv("TRAFFICX_REPO_URL", "https://github.com/Traffic-X/Traffic-X"), "/"),
		DefaultBranch: getEnv("TRAFFICX_DEFAULT_BRANCH", "main"),
		CADirURL:      getEnv("ACME_CA_URL", caDefault),
		ACMEEmail:     getEnv("ACME_EMAIL", ""),
		DBPath:        getEnv("DB_PATH", "/etc/x-ui/x-ui.db"),
		StateRoot:     getEnv("TRAFFICX_STATE_ROOT", "/var/lib"),
		LogDir:        getEnv("TRAFFICX_LOG_DIR", "/var/log"),
		LogLevel:      getEnv("TRAFFICX_LOG_LEVEL", "info"),
		LogFormat:     getEnv("TRAFFICX_LOG_FORMAT", "text"),
	}
}

// Validate rejects configurations that would write outside the expected layout.
func (c *Config) Validate() error {
	if c.ServiceName == "" || strings.ContainsAny(c.ServiceName, `/\ `) {
		return fmt.Errorf("config: invalid service name %q", c.ServiceName)
	}

	u, err := url.Parse(c.RepoURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: TRAFFICX_REPO_URL must be an absolute URL, got %q", c.RepoURL)
	}

	for name, p := range map[string]string{
		"TRAFFICX_STATE_ROOT": c.StateRoot,
		"TRAFFICX_LOG_DIR":    c.LogDir,
	} {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("config: %s must be absolute, got %q", name, p)
		}
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return errors.New("config: TRAFFICX_LOG_FORMAT must be json or text")
	}
	return nil
}

// RepoName is the archive's top-level directory prefix, e.g. "Traffic-X".
func (c *Config) RepoName() string {
	return path.Base(c.RepoURL)
}

// InstallDir is the application root for the given home directory.
func (c *Config) InstallDir(home string) string {
	return filepath.Join(home, c.ServiceName)
}

func (c *Config) DataDir() string {
	return filepath.Join(c.StateRoot, c.ServiceName)
}

func (c *Config) CertDir() string {
	return filepath.Join(c.DataDir(), "certs")
}

func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir(), "install.yaml")
}

func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, c.ServiceName+".log")
}

// InstallerLogFile receives the installer's own rotated audit log.
func (c *Config) InstallerLogFile() string {
	return filepath.Join(c.LogDir, c.ServiceName+"-installer.log")
}

// InstallerLogGlob matches the installer log and the backups lumberjack rotates out.
func (c *Config) InstallerLogGlob() string {
	return filepath.Join(c.LogDir, c.ServiceName+"-installer*")
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
