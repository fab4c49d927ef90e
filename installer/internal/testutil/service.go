package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/kardianos/service"
)

// FakeServiceHost stands in for systemd behind kardianos/service. Units are
// rendered into UnitDir from the SystemdScript option; every action is
// recorded as "<action> <name>".
type FakeServiceHost struct {
	UnitDir string

	mu       sync.Mutex
	Calls    []string
	States   map[string]string // `systemctl is-active` output per unit
	Failures map[string]error
	Configs  map[string]*service.Config
}

func NewFakeServiceHost(unitDir string) *FakeServiceHost {
	return &FakeServiceHost{
		UnitDir:  unitDir,
		States:   map[string]string{},
		Failures: map[string]error{},
		Configs:  map[string]*service.Config{},
	}
}

// Factory matches adapters.ServiceFactory.
func (h *FakeServiceHost) Factory(cfg *service.Config) (service.Service, error) {
	return &fakeService{host: h, cfg: cfg}, nil
}

// SetState scripts what systemd reports for name.
func (h *FakeServiceHost) SetState(name, state string) *FakeServiceHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.States[name] = state
	return h
}

// Fail makes "<action> <name>" return an error.
func (h *FakeServiceHost) Fail(action, name string) *FakeServiceHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Failures[action+" "+name] = fmt.Errorf("%s %s: exit status 1", action, name)
	return h
}

func (h *FakeServiceHost) Called(line string) bool {
	return h.Index(line) >= 0
}

// Index is the position of the first call equal to line, or -1.
func (h *FakeServiceHost) Index(line string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.Calls {
		if c == line {
			return i
		}
	}
	return -1
}

func (h *FakeServiceHost) unitPath(name string) string {
	return filepath.Join(h.UnitDir, name+".service")
}

func (h *FakeServiceHost) record(action, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	line := action + " " + name
	h.Calls = append(h.Calls, line)
	return h.Failures[line]
}

func (h *FakeServiceHost) state(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.States[name]
}

type fakeService struct {
	host *FakeServiceHost
	cfg  *service.Config
}

func (s *fakeService) Run() error { return nil }

func (s *fakeService) Start() error {
	if err := s.host.record("start", s.cfg.Name); err != nil {
		return err
	}
	s.host.SetState(s.cfg.Name, "active")
	return nil
}

func (s *fakeService) Stop() error {
	if err := s.host.record("stop", s.cfg.Name); err != nil {
		return err
	}
	s.host.SetState(s.cfg.Name, "inactive")
	return nil
}

func (s *fakeService) Restart() error {
	return s.host.record("restart", s.cfg.Name)
}

// Install mirrors kardianos: refuse an existing unit, write it, enable, reload.
func (s *fakeService) Install() error {
	if err := s.host.record("install", s.cfg.Name); err != nil {
		return err
	}
	path := s.host.unitPath(s.cfg.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("Init already exists: %s", path)
	}

	script, _ := s.cfg.Option["SystemdScript"].(string)
	tmpl, err := template.New("unit").Parse(script)
	if err != nil {
		return err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, s.cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(s.host.UnitDir, 0o755); err != nil {
		return err
	}
	s.host.mu.Lock()
	s.host.Configs[s.cfg.Name] = s.cfg
	s.host.mu.Unlock()
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (s *fakeService) Uninstall() error {
	if err := s.host.record("uninstall", s.cfg.Name); err != nil {
		return err
	}
	return os.Remove(s.host.unitPath(s.cfg.Name))
}

func (s *fakeService) Logger(chan<- error) (service.Logger, error)       { return nil, nil }
func (s *fakeService) SystemLogger(chan<- error) (service.Logger, error) { return nil, nil }
func (s *fakeService) String() string                                    { return s.cfg.Name }
func (s *fakeService) Platform() string                                  { return "linux-systemd" }

// Status follows the kardianos systemd mapping of `systemctl is-active`.
func (s *fakeService) Status() (service.Status, error) {
	if err := s.host.record("status", s.cfg.Name); err != nil {
		return service.StatusUnknown, err
	}
	_, statErr := os.Stat(s.host.unitPath(s.cfg.Name))

	switch s.host.state(s.cfg.Name) {
	case "active", "activating":
		return service.StatusRunning, nil
	case "inactive", "":
		if statErr == nil {
			return service.StatusStopped, nil
		}
		return service.StatusUnknown, service.ErrNotInstalled
	case "failed":
		return service.StatusUnknown, errors.New("service in failed state")
	}
	return service.StatusUnknown, service.ErrNotInstalled
}
