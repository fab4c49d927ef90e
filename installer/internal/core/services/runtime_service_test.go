package services_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/adapters"
	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/core/services"
	"github.com/irgordon/trafficx/installer/internal/testutil"
)

func TestRuntimeService_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("requirements file wins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("Flask\n"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "venv", "lib"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "venv", "lib", "stale"), nil, 0o644))

		fx := testutil.NewFakeExecutor()
		svc := services.NewRuntimeService(fx, adapters.NewAptPackageManager(fx), quietLogger())
		require.NoError(t, svc.Provision(ctx, dir))

		pip := filepath.Join(dir, "venv", "bin", "pip")
		assert.Equal(t, []string{
			"python3 -m venv " + filepath.Join(dir, "venv"),
			pip + " install --upgrade pip",
			pip + " install -r " + filepath.Join(dir, "requirements.txt"),
		}, fx.Calls)
		assert.NoFileExists(t, filepath.Join(dir, "venv", "lib", "stale"))
	})

	t.Run("pinned fallback set", func(t *testing.T) {
		dir := t.TempDir()
		fx := testutil.NewFakeExecutor()
		svc := services.NewRuntimeService(fx, nil, quietLogger())
		require.NoError(t, svc.Provision(ctx, dir))

		last := fx.Calls[len(fx.Calls)-1]
		assert.True(t, strings.HasSuffix(last, "install "+strings.Join(services.FallbackRequirements, " ")))
	})

	t.Run("pip upgrade failure is tolerated", func(t *testing.T) {
		dir := t.TempDir()
		pip := filepath.Join(dir, "venv", "bin", "pip")
		fx := testutil.NewFakeExecutor().Fail(pip + " install --upgrade")
		svc := services.NewRuntimeService(fx, nil, quietLogger())
		assert.NoError(t, svc.Provision(ctx, dir))
	})

	t.Run("venv creation failure is fatal", func(t *testing.T) {
		fx := testutil.NewFakeExecutor().Fail("python3 -m venv")
		svc := services.NewRuntimeService(fx, nil, quietLogger())
		err := svc.Provision(ctx, t.TempDir())
		assert.ErrorIs(t, err, domain.ErrRuntimeProvision)
	})

	t.Run("dependency install failure is fatal", func(t *testing.T) {
		dir := t.TempDir()
		pip := filepath.Join(dir, "venv", "bin", "pip")
		fx := testutil.NewFakeExecutor().Fail(pip + " install Flask")
		svc := services.NewRuntimeService(fx, nil, quietLogger())
		assert.ErrorIs(t, svc.Provision(ctx, dir), domain.ErrRuntimeProvision)
	})
}

func TestRuntimeService_PrepareSystem(t *testing.T) {
	ctx := context.Background()
	fx := testutil.NewFakeExecutor()
	svc := services.NewRuntimeService(fx, adapters.NewAptPackageManager(fx), quietLogger())

	assert.Error(t, svc.PrepareSystem(ctx), "apt-get not on PATH")

	fx.Paths["apt-get"] = "/usr/bin/apt-get"
	require.NoError(t, svc.PrepareSystem(ctx))
	assert.True(t, fx.Called("apt-get install -y -q python3 python3-venv python3-pip cron"))
}
