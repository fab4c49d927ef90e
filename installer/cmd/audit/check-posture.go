package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/irgordon/trafficx/installer/internal/adapters"
	"github.com/irgordon/trafficx/installer/internal/config"
	"github.com/irgordon/trafficx/installer/internal/db/sqlite"
	"github.com/irgordon/trafficx/installer/internal/identity"
)

// check is one posture audit point; it returns an empty string when it passes.
type check struct {
	name string
	run  func(ctx context.Context) (fail string, notice string)
}

func main() {
	fmt.Println("🔍 Traffic-X installer: running host posture audit...")

	// config.Load reads the installer env file through godotenv when present
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	checks := []check{
		{"configuration", func(context.Context) (string, string) {
			if err := cfg.Validate(); err != nil {
				return err.Error(), ""
			}
			return "", ""
		}},
		{"root privileges", func(context.Context) (string, string) {
			if os.Geteuid() != 0 {
				return "the installer must run as root", ""
			}
			return "", ""
		}},
		{"systemd", func(context.Context) (string, string) {
			if _, err := exec.LookPath("systemctl"); err != nil {
				return "systemctl not found; the panel is managed as a systemd unit", ""
			}
			return "", ""
		}},
		{"python3", func(context.Context) (string, string) {
			if _, err := exec.LookPath("python3"); err != nil {
				return "", "python3 not found; install will add it through apt-get"
			}
			return "", ""
		}},
		{"install identity", func(ctx context.Context) (string, string) {
			id, err := identity.NewResolver(adapters.NewShellExecutor(logger), logger).Resolve(ctx)
			if err != nil {
				return err.Error(), ""
			}
			if id.Username == "root" {
				return "", "no unprivileged invoking user; the panel would be installed for root"
			}
			return "", ""
		}},
		{"panel database", func(ctx context.Context) (string, string) {
			repo := sqlite.NewTrafficRepository()
			if err := repo.Probe(ctx, cfg.DBPath); err != nil {
				// the panel starts without it, so this never blocks an install
				return "", err.Error()
			}
			n, err := repo.CountClients(ctx, cfg.DBPath)
			if err != nil {
				return "", err.Error()
			}
			fmt.Printf("   %s holds %d client traffic rows\n", cfg.DBPath, n)
			return "", ""
		}},
		{"ACME contact", func(context.Context) (string, string) {
			if cfg.ACMEEmail == "" {
				return "", "ACME_EMAIL is unset; the CA cannot send expiry notices"
			}
			return "", ""
		}},
	}

	hasErrors := false
	ctx := context.Background()
	for _, c := range checks {
		fail, notice := c.run(ctx)
		switch {
		case fail != "":
			fmt.Printf("❌ FAIL: %s: %s\n", c.name, fail)
			hasErrors = true
		case notice != "":
			fmt.Printf("⚠️  NOTICE: %s: %s\n", c.name, notice)
		default:
			fmt.Printf("✅ PASS: %s\n", c.name)
		}
	}

	fmt.Println("--------------------------------------------------")
	if hasErrors {
		fmt.Println("🚨 VERDICT: HOST NOT READY.")
		fmt.Println("Fix the errors above before running trafficx install.")
		os.Exit(1)
	}
	fmt.Println("🚀 VERDICT: HOST READY for trafficx install.")
}
