// Package identity resolves who a privileged install is really for.
//
// Elevated runs (sudo) execute as root while the deployment belongs to the invoking
// user. The resolver is the single place that untangles this, and both the install
// pipeline and the certificate manager ask it rather than reading the environment.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

const superuser = "root"

// RootHome is where the superuser's per-user state lives.
const RootHome = "/root"

type Resolver struct {
	getenv    func(string) string
	lookup    func(string) (*user.User, error)
	current   func() (*user.User, error)
	loginName func(context.Context) (string, error)
	isDir     func(string) bool
	logger    *slog.Logger
}

func NewResolver(exec domain.Executor, logger *slog.Logger) *Resolver {
	return &Resolver{
		getenv:  os.Getenv,
		lookup:  user.Lookup,
		current: user.Current,
		loginName: func(ctx context.Context) (string, error) {
			out, err := exec.Run(ctx, domain.Command{Name: "logname"})
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(out)), nil
		},
		isDir: func(p string) bool {
			fi, err := os.Stat(p)
			return err == nil && fi.IsDir()
		},
		logger: logger,
	}
}

// Resolve returns the effective owner of the deployment without prompting.
// Order: SUDO_USER, then the session login name, then the current process user.
// A root result is refused with ErrNoUnprivilegedUser.
func (r *Resolver) Resolve(ctx context.Context) (domain.Identity, error) {
	name := strings.TrimSpace(r.getenv("SUDO_USER"))

	if name == "" || name == superuser {
		// logname reports the session owner, which survives `sudo su`
		if ln, err := r.loginName(ctx); err == nil && ln != "" && ln != superuser {
			name = ln
		} else if err != nil {
			r.logger.Debug("logname unavailable", slog.Any("error", err))
		}
	}

	var (
		u   *user.User
		err error
	)
	if name == "" || name == superuser {
		u, err = r.current()
	} else {
		u, err = r.lookup(name)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: cannot resolve user %q: %v", domain.ErrInvalidHome, name, err)
	}

	// installing for root would put the app under /root and run it as root
	if u.Username == superuser || u.Uid == "0" {
		return domain.Identity{}, fmt.Errorf("%w: run the installer with sudo from the account that should own the panel",
			domain.ErrNoUnprivilegedUser)
	}

	id, err := r.identity(u)
	if err != nil {
		return domain.Identity{}, err
	}
	r.logger.Info("Resolved install identity",
		slog.String("user", id.Username),
		slog.String("home", id.HomeDir))
	return id, nil
}

// Lookup returns the identity of a known owner by name, independent of who
// runs the process. Scheduled renewals use it for the recorded owner.
func (r *Resolver) Lookup(_ context.Context, username string) (domain.Identity, error) {
	u, err := r.lookup(username)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: cannot resolve user %q: %v", domain.ErrInvalidHome, username, err)
	}
	return r.identity(u)
}

func (r *Resolver) identity(u *user.User) (domain.Identity, error) {
	if u.HomeDir == "" || !r.isDir(u.HomeDir) {
		return domain.Identity{}, fmt.Errorf("%w: %q (user %s)", domain.ErrInvalidHome, u.HomeDir, u.Username)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity: non-numeric uid %q for %s", u.Uid, u.Username)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity: non-numeric gid %q for %s", u.Gid, u.Username)
	}
	return domain.Identity{Username: u.Username, HomeDir: u.HomeDir, UID: uid, GID: gid}, nil
}

// HomeCandidates lists, in priority order and without duplicates, the homes where
// per-user tool state may live: the owner's, the running process's ($HOME, which
// sudo may or may not have reset) and the superuser's.
func (r *Resolver) HomeCandidates(owner domain.Identity) []string {
	raw := []string{owner.HomeDir, r.getenv("HOME"), RootHome}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, h := range raw {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Usernames lists the OS users whose per-user state the installer may have touched.
func (r *Resolver) Usernames(owner domain.Identity) []string {
	if owner.Username == "" || owner.Username == superuser {
		return []string{superuser}
	}
	return []string{owner.Username, superuser}
}
