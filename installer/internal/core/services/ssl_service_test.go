package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/core/services"
)

type fakeStrategy struct {
	name  string
	err   error
	calls *[]string
}

func (f fakeStrategy) Name() string { return f.name }

func (f fakeStrategy) Issue(_ context.Context, domainName string) (*domain.IssuedBundle, error) {
	*f.calls = append(*f.calls, f.name)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IssuedBundle{
		Certificate: []byte("CERT " + domainName + " via " + f.name),
		PrivateKey:  []byte("KEY " + domainName),
	}, nil
}

type fakeTool struct {
	installErr error
	installs   []string
	located    []string
	ca         string
}

func (f *fakeTool) Install(_ context.Context, home string) error {
	f.installs = append(f.installs, home)
	return f.installErr
}

func (f *fakeTool) Locate(homes []string) (string, error) {
	f.located = homes
	if f.installErr != nil {
		return "", domain.ErrToolNotInstalled
	}
	return filepath.Join(homes[0], ".lego"), nil
}

func (f *fakeTool) SetDefaultCA(_ context.Context, url string) error {
	f.ca = url
	return nil
}

func (f *fakeTool) Uninstall(context.Context, string) (bool, error) { return false, nil }

type fakeFirewall struct {
	available bool
	opened    []int
}

func (f *fakeFirewall) Available() bool { return f.available }
func (f *fakeFirewall) Allow(_ context.Context, port int) error {
	f.opened = append(f.opened, port)
	return nil
}

type fakeReclaimer struct{ err error }

func (f fakeReclaimer) Release(context.Context, int) error { return f.err }

type staticHomes []string

func (h staticHomes) HomeCandidates(domain.Identity) []string { return h }

func sslTarget(t *testing.T) domain.InstallTarget {
	t.Helper()
	id := domain.Identity{Username: "alice", HomeDir: t.TempDir(), UID: os.Getuid(), GID: os.Getgid()}
	target, err := domain.NewInstallTarget(id, "example.com", 0, "")
	require.NoError(t, err)
	return target
}

func strategies(calls *[]string, errs ...error) []domain.IssuanceStrategy {
	names := []string{"http-01 standalone ipv4", "http-01 standalone ipv6", "tls-alpn-01"}
	out := make([]domain.IssuanceStrategy, len(errs))
	for i, err := range errs {
		out[i] = fakeStrategy{name: names[i], err: err, calls: calls}
	}
	return out
}

func TestSslService_ReusesExistingCertificate(t *testing.T) {
	certDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(certDir, "example.com.cer"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(certDir, "example.com.key"), []byte("k"), 0o600))

	var calls []string
	tool := &fakeTool{}
	fw := &fakeFirewall{available: true}
	svc := services.NewSslService(services.SslDeps{
		Tool:       tool,
		Strategies: strategies(&calls, nil, nil, nil),
		Firewall:   fw,
	}, certDir, "https://ca.example/dir", quietLogger())

	for i := 0; i < 2; i++ {
		rec, err := svc.Ensure(context.Background(), sslTarget(t))
		require.NoError(t, err)
		assert.Equal(t, domain.CertReused, rec.State)
		assert.False(t, rec.Issued)
		require.NotNil(t, rec.SSLContext())
	}

	assert.Empty(t, calls)
	assert.Empty(t, tool.installs)
	assert.Empty(t, fw.opened)
}

func TestSslService_FallbackOrder(t *testing.T) {
	certDir := t.TempDir()
	var calls []string
	tool := &fakeTool{}
	fw := &fakeFirewall{available: true}
	svc := services.NewSslService(services.SslDeps{
		Tool:       tool,
		Strategies: strategies(&calls, errors.New("timeout"), errors.New("connection refused"), nil),
		Homes:      staticHomes{"/home/alice", "/root"},
		Firewall:   fw,
		Reclaimer:  fakeReclaimer{err: errors.New("nothing to stop")},
	}, certDir, "https://ca.example/dir", quietLogger())

	target := sslTarget(t)
	rec, err := svc.Ensure(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, []string{"http-01 standalone ipv4", "http-01 standalone ipv6", "tls-alpn-01"}, calls)
	assert.Equal(t, domain.CertIssued, rec.State)
	assert.True(t, rec.Issued)
	assert.Equal(t, "tls-alpn-01", rec.Strategy)
	assert.Equal(t, "https", rec.Scheme())

	assert.Equal(t, []string{target.HomeDir}, tool.installs)
	assert.Equal(t, []string{"/home/alice", "/root"}, tool.located)
	assert.Equal(t, "https://ca.example/dir", tool.ca)
	assert.Equal(t, []int{80, 443}, fw.opened)

	cert, err := os.Stat(rec.CertPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), cert.Mode().Perm())
	key, err := os.Stat(rec.KeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), key.Mode().Perm())

	body, err := os.ReadFile(rec.CertPath)
	require.NoError(t, err)
	assert.Equal(t, "CERT example.com via tls-alpn-01", string(body))
}

func TestSslService_StopsAtFirstSuccess(t *testing.T) {
	var calls []string
	svc := services.NewSslService(services.SslDeps{
		Tool:       &fakeTool{},
		Strategies: strategies(&calls, nil, nil, nil),
	}, t.TempDir(), "", quietLogger())

	rec, err := svc.Ensure(context.Background(), sslTarget(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"http-01 standalone ipv4"}, calls)
	assert.Equal(t, "http-01 standalone ipv4", rec.Strategy)
}

func TestSslService_AllStrategiesFail(t *testing.T) {
	var calls []string
	fail := errors.New("challenge failed")
	svc := services.NewSslService(services.SslDeps{
		Tool:       &fakeTool{installErr: errors.New("mkdir: permission denied")},
		Strategies: strategies(&calls, fail, fail, fail),
		Firewall:   &fakeFirewall{},
	}, t.TempDir(), "https://ca.example/dir", quietLogger())

	rec, err := svc.Ensure(context.Background(), sslTarget(t))
	require.ErrorIs(t, err, domain.ErrAllStrategiesFailed)
	assert.Len(t, calls, 3)
	assert.Equal(t, domain.CertFailed, rec.State)
	assert.Nil(t, rec.SSLContext())
	assert.Equal(t, "http", rec.Scheme())
	assert.NoFileExists(t, rec.CertPath)
}

func TestSslService_Renew(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, notAfter time.Time) (*services.SslService, *[]string) {
		certDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(certDir, "example.com.cer"), []byte("c"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(certDir, "example.com.key"), []byte("k"), 0o600))

		var calls []string
		svc := services.NewSslService(services.SslDeps{
			Tool:       &fakeTool{},
			Strategies: strategies(&calls, nil),
			Inspect: func(string) (*domain.CertificateInfo, error) {
				return &domain.CertificateInfo{NotAfter: notAfter}, nil
			},
		}, certDir, "", quietLogger())
		return svc, &calls
	}

	t.Run("fresh certificate is kept", func(t *testing.T) {
		svc, calls := setup(t, time.Now().Add(60*24*time.Hour))
		rec, renewed, err := svc.Renew(ctx, sslTarget(t))
		require.NoError(t, err)
		assert.False(t, renewed)
		assert.Equal(t, domain.CertReused, rec.State)
		assert.Empty(t, *calls)
	})

	t.Run("expiring certificate is reissued", func(t *testing.T) {
		svc, calls := setup(t, time.Now().Add(5*24*time.Hour))
		rec, renewed, err := svc.Renew(ctx, sslTarget(t))
		require.NoError(t, err)
		assert.True(t, renewed)
		assert.Equal(t, domain.CertIssued, rec.State)
		assert.Len(t, *calls, 1)
	})
}
