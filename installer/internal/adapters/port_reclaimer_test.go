package adapters

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/testutil"
)

func newTestReclaimer(host *testutil.FakeServiceHost, holders []Listener) (*PortReclaimer, *[]int32) {
	var killed []int32
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewPortReclaimer(NewSystemdAdapter(host.UnitDir, host.Factory, logger), logger)
	r.listeners = func(context.Context, int) ([]Listener, error) { return holders, nil }
	r.terminate = func(_ context.Context, pid int32) error {
		killed = append(killed, pid)
		return nil
	}
	return r, &killed
}

func TestPortReclaimer_FreePort(t *testing.T) {
	host := testutil.NewFakeServiceHost(t.TempDir())
	r, killed := newTestReclaimer(host, nil)

	require.NoError(t, r.Release(context.Background(), 80))
	assert.Empty(t, host.Calls)
	assert.Empty(t, *killed)
}

func TestPortReclaimer_StopsActiveUnit(t *testing.T) {
	host := testutil.NewFakeServiceHost(t.TempDir()).SetState("nginx", "active")
	r, killed := newTestReclaimer(host, []Listener{{PID: 812, Name: "nginx"}})

	require.NoError(t, r.Release(context.Background(), 80))
	assert.True(t, host.Called("stop nginx"))
	assert.Empty(t, *killed)
}

func TestPortReclaimer_TerminatesStrayProcess(t *testing.T) {
	host := testutil.NewFakeServiceHost(t.TempDir())
	r, killed := newTestReclaimer(host, []Listener{{PID: 4242, Name: "python3"}})

	require.NoError(t, r.Release(context.Background(), 80))
	assert.False(t, host.Called("stop python3"))
	assert.Equal(t, []int32{4242}, *killed)
}

func TestPortReclaimer_ReportsStopFailure(t *testing.T) {
	host := testutil.NewFakeServiceHost(t.TempDir()).SetState("apache2", "active")
	host.Fail("stop", "apache2")
	r, _ := newTestReclaimer(host, []Listener{{PID: 77, Name: "apache2"}})

	err := r.Release(context.Background(), 80)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop apache2")
}
