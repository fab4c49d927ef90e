// Package testutil holds fakes shared by the installer's package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// Response is the scripted result of a command.
type Response struct {
	Output string
	Err    error
}

// FakeExecutor records every command and replies from a script keyed by the
// command line prefix ("apt-get install", "ufw", ...). The longest matching
// prefix wins; unmatched commands succeed with empty output.
type FakeExecutor struct {
	mu        sync.Mutex
	Calls     []string
	Stdin     map[string]string
	Responses map[string]Response
	Paths     map[string]string
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		Stdin:     map[string]string{},
		Responses: map[string]Response{},
		Paths:     map[string]string{},
	}
}

// On scripts the reply for commands starting with prefix.
func (f *FakeExecutor) On(prefix string, output string, err error) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[prefix] = Response{Output: output, Err: err}
	return f
}

// Fail is shorthand for a command that exits non-zero.
func (f *FakeExecutor) Fail(prefix string) *FakeExecutor {
	return f.On(prefix, "", fmt.Errorf("%s: exit status 1", prefix))
}

func (f *FakeExecutor) Run(_ context.Context, c domain.Command) ([]byte, error) {
	line := strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))

	f.mu.Lock()
	f.Calls = append(f.Calls, line)
	if c.Stdin != nil {
		b, _ := io.ReadAll(c.Stdin)
		f.Stdin[line] = string(b)
	}

	best, found := "", false
	for prefix := range f.Responses {
		if strings.HasPrefix(line, prefix) && len(prefix) >= len(best) {
			best, found = prefix, true
		}
	}
	var resp Response
	if found {
		resp = f.Responses[best]
	}
	f.mu.Unlock()

	return []byte(resp.Output), resp.Err
}

func (f *FakeExecutor) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

// Called reports whether any recorded command starts with prefix.
func (f *FakeExecutor) Called(prefix string) bool {
	return f.Index(prefix) >= 0
}

// Index returns the position of the first command starting with prefix, or -1.
func (f *FakeExecutor) Index(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}
