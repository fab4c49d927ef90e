package adapters

import (
	"context"
	"strconv"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// UfwFirewall opens ports through ufw when it is installed.
type UfwFirewall struct {
	exec domain.Executor
}

func NewUfwFirewall(exec domain.Executor) *UfwFirewall {
	return &UfwFirewall{exec: exec}
}

func (f *UfwFirewall) Available() bool {
	_, err := f.exec.LookPath("ufw")
	return err == nil
}

func (f *UfwFirewall) Allow(ctx context.Context, port int) error {
	_, err := f.exec.Run(ctx, domain.Command{Name: "ufw", Args: []string{"allow", strconv.Itoa(port) + "/tcp"}})
	return err
}
