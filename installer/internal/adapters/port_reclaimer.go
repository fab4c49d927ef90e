package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// Listener is a process bound to a local TCP port.
type Listener struct {
	PID  int32
	Name string
}

// PortReclaimer frees a port for the standalone ACME challenge servers. A
// listener that is a running systemd unit (nginx, apache2, caddy, ...) is
// stopped through the service manager; anything else is sent SIGTERM.
type PortReclaimer struct {
	services  domain.ServiceManager
	listeners func(ctx context.Context, port int) ([]Listener, error)
	terminate func(ctx context.Context, pid int32) error
	logger    *slog.Logger
}

func NewPortReclaimer(services domain.ServiceManager, logger *slog.Logger) *PortReclaimer {
	return &PortReclaimer{
		services:  services,
		listeners: listenersOn,
		terminate: func(ctx context.Context, pid int32) error {
			p, err := process.NewProcessWithContext(ctx, pid)
			if err != nil {
				return err
			}
			return p.TerminateWithContext(ctx)
		},
		logger: logger,
	}
}

func (r *PortReclaimer) Release(ctx context.Context, port int) error {
	holders, err := r.listeners(ctx, port)
	if err != nil {
		return fmt.Errorf("list listeners on :%d: %w", port, err)
	}
	if len(holders) == 0 {
		return nil
	}

	var result *multierror.Error
	for _, l := range holders {
		r.logger.Info("Port is held, releasing it",
			slog.Int("port", port),
			slog.String("process", l.Name),
			slog.Int("pid", int(l.PID)))

		if l.Name != "" {
			if active, _ := r.services.IsActive(ctx, l.Name); active {
				if err := r.services.Stop(ctx, l.Name); err != nil {
					result = multierror.Append(result, fmt.Errorf("stop %s: %w", l.Name, err))
				}
				continue
			}
		}
		if err := r.terminate(ctx, l.PID); err != nil {
			result = multierror.Append(result, fmt.Errorf("terminate pid %d: %w", l.PID, err))
		}
	}
	return result.ErrorOrNil()
}

func listenersOn(ctx context.Context, port int) ([]Listener, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	seen := map[int32]bool{}
	var out []Listener
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port || c.Pid == 0 || seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true

		l := Listener{PID: c.Pid}
		if p, err := process.NewProcessWithContext(ctx, c.Pid); err == nil {
			l.Name, _ = p.NameWithContext(ctx)
		}
		out = append(out, l)
	}
	return out, nil
}
