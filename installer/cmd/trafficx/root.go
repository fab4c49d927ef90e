package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/irgordon/trafficx/installer/internal/prompt"
	"github.com/irgordon/trafficx/installer/internal/worker"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	logLevel  string
	logFormat string
	noLogFile bool

	rootCmd = &cobra.Command{
		Use:          "trafficx",
		Short:        "Install, renew and remove the Traffic-X web panel",
		Long:         "Without a subcommand trafficx opens the interactive menu.",
		SilenceUsage: true,
		RunE:         runMenu,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides TRAFFICX_LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "console log format (json or text); overrides TRAFFICX_LOG_FORMAT")
	rootCmd.PersistentFlags().BoolVar(&noLogFile, "no-log-file", false, "do not write the rotated installer log")

	rootCmd.AddCommand(installCmd, uninstallCmd, renewCmd, versionCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func requireRoot() error {
	if os.Geteuid() != 0 {
		return errors.New("trafficx must be run as root (try sudo)")
	}
	return nil
}

func runMenu(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("the interactive menu needs a terminal; use `trafficx install` or `trafficx uninstall` instead")
	}
	if err := requireRoot(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
	a, err := newApp(p.Confirm)
	if err != nil {
		return err
	}
	defer a.Close()

	switch p.Menu() {
	case prompt.ChoiceInstall:
		req, err := askInstall(p)
		if err != nil {
			return err
		}
		return a.install(ctx, cmd.OutOrStdout(), req)
	case prompt.ChoiceUninstall:
		return a.uninstall(ctx, cmd.OutOrStdout())
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Bye.")
		return nil
	}
}

func askInstall(p *prompt.Prompter) (worker.InstallRequest, error) {
	var (
		req worker.InstallRequest
		err error
	)
	for req.Domain == "" {
		if req.Domain, err = p.Ask("Domain name", ""); err != nil {
			return req, err
		}
	}
	if req.Port, err = p.AskInt("Port", 5000); err != nil {
		return req, err
	}
	if req.Version, err = p.Ask("Version (tag or latest)", "latest"); err != nil {
		return req, err
	}
	return req, nil
}
