package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/core/utils"
)

// SSLDisabledWarning is reported whenever the service is exposed over plain HTTP.
const SSLDisabledWarning = "SSL is disabled: no certificate could be issued or reused, the service is served over plain HTTP"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{.Description}}
After=network-online.target
Wants=network-online.target

[Service]
User={{.User}}
WorkingDirectory={{.WorkingDir}}
{{- range .Env}}
Environment={{.}}
{{- end}}
ExecStart={{.ExecStart}}
Restart={{.Restart}}
RestartSec={{.RestartSec}}
StandardOutput=append:{{.LogPath}}
StandardError=append:{{.LogPath}}

[Install]
WantedBy={{.WantedBy}}
`))

// UnitSettings are the per-host values a descriptor is built from.
type UnitSettings struct {
	Name        string
	Description string
	InstallDir  string
	LogPath     string
	DBPath      string
}

// BuildDescriptor assembles the service definition. The certificate flags are
// present on the gunicorn command line iff ssl is non-nil.
func BuildDescriptor(settings UnitSettings, target domain.InstallTarget, ssl *domain.SSLContext) domain.ServiceDescriptor {
	gunicorn := []string{
		"exec", "gunicorn", "-w", "4",
		"-b", "0.0.0.0:" + strconv.Itoa(target.Port),
	}
	if ssl != nil {
		gunicorn = append(gunicorn, "--certfile="+ssl.CertFile, "--keyfile="+ssl.KeyFile)
	}
	gunicorn = append(gunicorn, "app:app")

	activate := filepath.Join(settings.InstallDir, VenvDir, "bin", "activate")
	script := "source " + activate + " && " + strings.Join(gunicorn, " ")

	env := map[string]string{}
	if settings.DBPath != "" {
		env["DB_PATH"] = settings.DBPath
	}

	return domain.ServiceDescriptor{
		Name:        settings.Name,
		Description: settings.Description,
		WorkingDir:  settings.InstallDir,
		User:        target.Username,
		Env:         env,
		ExecStart:   []string{"/bin/bash", "-c", script},
		Restart:     "always",
		RestartSec:  5,
		LogPath:     settings.LogPath,
		WantedBy:    "multi-user.target",
	}
}

// RenderDescriptor produces the systemd unit file for d.
func RenderDescriptor(d domain.ServiceDescriptor) ([]byte, error) {
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+d.Env[k])
	}

	view := struct {
		domain.ServiceDescriptor
		Env       []string
		ExecStart string
	}{d, env, quoteCommand(d.ExecStart)}

	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func quoteCommand(argv []string) string {
	out := make([]string, len(argv))
	for i, a := range argv {
		if strings.ContainsAny(a, " \t'\"$&;") {
			out[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
			continue
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

// Reachability returns the externally reported URL and, for plain HTTP, the
// warning that must accompany it.
func Reachability(target domain.InstallTarget, ssl *domain.SSLContext) (string, string) {
	if ssl != nil {
		return domain.ServiceURL("https", target.Domain, target.Port), ""
	}
	return domain.ServiceURL("http", target.Domain, target.Port), SSLDisabledWarning
}

// LifecycleService installs and (re)starts the service definition.
type LifecycleService struct {
	services domain.ServiceManager
	logger   *slog.Logger
}

func NewLifecycleService(services domain.ServiceManager, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{services: services, logger: logger}
}

// Deploy stops a running instance before its descriptor is replaced, then
// installs, enables and starts it.
func (s *LifecycleService) Deploy(ctx context.Context, d domain.ServiceDescriptor, owner domain.Identity) error {
	active, err := s.services.IsActive(ctx, d.Name)
	if err != nil {
		return fmt.Errorf("%w: query %s: %v", domain.ErrServiceInstall, d.Name, err)
	}
	if active {
		s.logger.Info("Stopping running service before update", slog.String("service", d.Name))
		if err := s.services.Stop(ctx, d.Name); err != nil {
			return fmt.Errorf("%w: stop %s: %v", domain.ErrServiceInstall, d.Name, err)
		}
	}

	content, err := RenderDescriptor(d)
	if err != nil {
		return fmt.Errorf("%w: render unit: %v", domain.ErrServiceInstall, err)
	}
	if err := s.services.Install(ctx, d, content); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceInstall, err)
	}

	utils.NonCritical(ctx, s.logger, "prepare service log", func(context.Context) error {
		return touchOwned(d.LogPath, owner)
	})

	if err := s.services.Start(ctx, d.Name); err != nil {
		return fmt.Errorf("%w: start %s: %v", domain.ErrServiceInstall, d.Name, err)
	}

	s.logger.Info("Service started", slog.String("service", d.Name))
	return nil
}

func touchOwned(path string, owner domain.Identity) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chown(path, owner.UID, owner.GID)
}
