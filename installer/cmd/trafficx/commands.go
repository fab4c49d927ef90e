package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/irgordon/trafficx/installer/internal/prompt"
	"github.com/irgordon/trafficx/installer/internal/worker"
)

var (
	installDomain  string
	installPort    int
	installVersion string

	assumeYes  bool
	removeDeps bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Fetch, provision, secure and start the panel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		return a.install(ctx, cmd.OutOrStdout(), worker.InstallRequest{
			Domain:  installDomain,
			Port:    installPort,
			Version: installVersion,
		})
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the panel, its certificates and its service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireRoot(); err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
		confirm := p.Confirm
		if assumeYes {
			// --yes answers the removal question; dependencies still need --remove-deps
			first := true
			confirm = func(string) bool {
				if first {
					first = false
					return true
				}
				return removeDeps
			}
		}

		a, err := newApp(confirm)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.uninstall(ctx, cmd.OutOrStdout())
	},
}

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Renew the certificate when it is close to expiry and restart the panel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireRoot(); err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.renew(ctx, cmd.OutOrStdout())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the installer version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	installCmd.Flags().StringVar(&installDomain, "domain", "", "domain name the panel is served on")
	installCmd.Flags().IntVar(&installPort, "port", 5000, "port the panel listens on")
	installCmd.Flags().StringVar(&installVersion, "version", "latest", "release tag to install, or latest for the default branch")
	_ = installCmd.MarkFlagRequired("domain")

	uninstallCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask before removing the installation")
	uninstallCmd.Flags().BoolVar(&removeDeps, "remove-deps", false, "with --yes, also remove the system packages")
}
