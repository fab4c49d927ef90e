package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

var alice = domain.Identity{Username: "alice", HomeDir: "/home/alice", UID: 1000, GID: 1000}

func TestNewInstallTarget_Defaults(t *testing.T) {
	target, err := domain.NewInstallTarget(alice, "Example.com ", 0, "")
	require.NoError(t, err)

	assert.Equal(t, "example.com", target.Domain)
	assert.Equal(t, 5000, target.Port)
	assert.Equal(t, "latest", target.Version)
	assert.True(t, target.IsLatest())
	assert.Equal(t, alice, target.Owner())
}

func TestNewInstallTarget_KeepsExplicitValues(t *testing.T) {
	target, err := domain.NewInstallTarget(alice, "panel.example.org", 8443, "v1.4.2")
	require.NoError(t, err)

	assert.Equal(t, 8443, target.Port)
	assert.Equal(t, "v1.4.2", target.Version)
	assert.False(t, target.IsLatest())
}

func TestNewInstallTarget_AcceptsSlashInTag(t *testing.T) {
	for _, v := range []string{"release/1.0", "feature/x-ui/2", "v2.0.0-rc.1"} {
		target, err := domain.NewInstallTarget(alice, "example.com", 0, v)
		require.NoError(t, err, v)
		assert.Equal(t, v, target.Version)
	}
}

func TestNewInstallTarget_Rejects(t *testing.T) {
	cases := map[string]struct {
		id      domain.Identity
		domain  string
		port    int
		version string
	}{
		"empty domain":     {alice, "", 0, ""},
		"bad domain":       {alice, "exa mple.com", 0, ""},
		"port too high":    {alice, "example.com", 70000, ""},
		"negative port":    {alice, "example.com", -1, ""},
		"path in version":  {alice, "example.com", 0, "../../etc"},
		"dotdot in tag":    {alice, "example.com", 0, "release/../main"},
		"backslash in tag": {alice, "example.com", 0, `release\1.0`},
		"missing username": {domain.Identity{HomeDir: "/home/x"}, "example.com", 0, ""},
		"relative home":    {domain.Identity{Username: "x", HomeDir: "home/x"}, "example.com", 0, ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.NewInstallTarget(tc.id, tc.domain, tc.port, tc.version)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidTarget))
		})
	}
}

func TestCertificateRecord_SSLContext(t *testing.T) {
	base := domain.CertificateRecord{
		Domain:   "example.com",
		CertPath: "/var/lib/traffic-x/certs/example.com.cer",
		KeyPath:  "/var/lib/traffic-x/certs/example.com.key",
	}

	for _, state := range []domain.CertState{domain.CertIssued, domain.CertReused} {
		r := base
		r.State = state
		ctx := r.SSLContext()
		require.NotNil(t, ctx, state)
		assert.Equal(t, base.CertPath, ctx.CertFile)
		assert.Equal(t, base.KeyPath, ctx.KeyFile)
		assert.Equal(t, "https", r.Scheme())
	}

	for _, state := range []domain.CertState{domain.CertNoCert, domain.CertIssuing, domain.CertFailed} {
		r := base
		r.State = state
		assert.Nil(t, r.SSLContext(), state)
		assert.Equal(t, "http", r.Scheme())
	}
}

func TestServiceURL(t *testing.T) {
	assert.Equal(t, "http://example.com:5000", domain.ServiceURL("http", "example.com", 5000))
	assert.Equal(t, "https://example.com:443", domain.ServiceURL("https", "example.com", 443))
}
