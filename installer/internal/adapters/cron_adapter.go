package adapters

import (
	"context"
	"strings"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// CrontabScheduler keeps marker-tagged lines in a user's crontab.
type CrontabScheduler struct {
	exec domain.Executor
}

func NewCrontabScheduler(exec domain.Executor) *CrontabScheduler {
	return &CrontabScheduler{exec: exec}
}

// Ensure replaces any job tagged with marker by line.
func (s *CrontabScheduler) Ensure(ctx context.Context, username, marker, line string) error {
	current, err := s.read(ctx, username)
	if err != nil {
		return err
	}

	kept, _ := withoutMarker(current, marker)
	kept = append(kept, line+" # "+marker)
	return s.write(ctx, username, kept)
}

// Remove drops every job tagged with marker. A host without crontab has nothing to remove.
func (s *CrontabScheduler) Remove(ctx context.Context, username, marker string) (bool, error) {
	if _, err := s.exec.LookPath("crontab"); err != nil {
		return false, nil
	}

	current, err := s.read(ctx, username)
	if err != nil {
		return false, err
	}

	kept, removed := withoutMarker(current, marker)
	if !removed {
		return false, nil
	}
	return true, s.write(ctx, username, kept)
}

func (s *CrontabScheduler) read(ctx context.Context, username string) ([]string, error) {
	out, err := s.exec.Run(ctx, domain.Command{Name: "crontab", Args: []string{"-u", username, "-l"}})
	if err != nil {
		// crontab exits 1 with this message for users that never had one
		if strings.Contains(string(out), "no crontab for") {
			return nil, nil
		}
		return nil, err
	}

	var lines []string
	for _, l := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func (s *CrontabScheduler) write(ctx context.Context, username string, lines []string) error {
	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}
	_, err := s.exec.Run(ctx, domain.Command{
		Name:  "crontab",
		Args:  []string{"-u", username, "-"},
		Stdin: strings.NewReader(body),
	})
	return err
}

func withoutMarker(lines []string, marker string) ([]string, bool) {
	kept := make([]string, 0, len(lines))
	removed := false
	for _, l := range lines {
		if strings.Contains(l, marker) {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	return kept, removed
}
