package adapters

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// YAMLStateStore keeps the install record in a single YAML file.
type YAMLStateStore struct {
	path string
}

func NewYAMLStateStore(path string) *YAMLStateStore {
	return &YAMLStateStore{path: path}
}

// Load returns domain.ErrNotInstalled when no record exists.
func (s *YAMLStateStore) Load() (*domain.InstallState, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotInstalled
	}
	if err != nil {
		return nil, err
	}

	var st domain.InstallState
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return &st, nil
}

func (s *YAMLStateStore) Save(st domain.InstallState) error {
	raw, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *YAMLStateStore) Remove() (bool, error) {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
