package adapters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/adapters"
	"github.com/irgordon/trafficx/installer/internal/testutil"
)

const marker = "trafficx-renew"

func TestCrontabScheduler_Ensure(t *testing.T) {
	ctx := context.Background()

	t.Run("user without crontab", func(t *testing.T) {
		fx := testutil.NewFakeExecutor().
			On("crontab -u root -l", "no crontab for root\n", errors.New("exit status 1"))

		err := adapters.NewCrontabScheduler(fx).Ensure(ctx, "root", marker, "17 3 * * * /usr/local/bin/trafficx renew")
		require.NoError(t, err)
		assert.Equal(t, "17 3 * * * /usr/local/bin/trafficx renew # trafficx-renew\n", fx.Stdin["crontab -u root -"])
	})

	t.Run("replaces an existing tagged line", func(t *testing.T) {
		fx := testutil.NewFakeExecutor().
			On("crontab -u root -l", "0 1 * * * /bin/backup\n5 5 * * * old # trafficx-renew\n", nil)

		err := adapters.NewCrontabScheduler(fx).Ensure(ctx, "root", marker, "17 3 * * * new")
		require.NoError(t, err)
		assert.Equal(t, "0 1 * * * /bin/backup\n17 3 * * * new # trafficx-renew\n", fx.Stdin["crontab -u root -"])
	})

	t.Run("unreadable crontab", func(t *testing.T) {
		fx := testutil.NewFakeExecutor().On("crontab -u root -l", "permission denied", errors.New("exit status 1"))
		err := adapters.NewCrontabScheduler(fx).Ensure(ctx, "root", marker, "x")
		assert.Error(t, err)
	})
}

func TestCrontabScheduler_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("no crontab binary", func(t *testing.T) {
		fx := testutil.NewFakeExecutor()
		found, err := adapters.NewCrontabScheduler(fx).Remove(ctx, "alice", marker)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, fx.Calls)
	})

	t.Run("nothing tagged", func(t *testing.T) {
		fx := testutil.NewFakeExecutor().On("crontab -u alice -l", "0 1 * * * /bin/backup\n", nil)
		fx.Paths["crontab"] = "/usr/bin/crontab"

		found, err := adapters.NewCrontabScheduler(fx).Remove(ctx, "alice", marker)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Len(t, fx.Calls, 1)
	})

	t.Run("tagged line removed", func(t *testing.T) {
		fx := testutil.NewFakeExecutor().On("crontab -u alice -l", "0 1 * * * /bin/backup\n5 5 * * * x # trafficx-renew\n", nil)
		fx.Paths["crontab"] = "/usr/bin/crontab"

		found, err := adapters.NewCrontabScheduler(fx).Remove(ctx, "alice", marker)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "0 1 * * * /bin/backup\n", fx.Stdin["crontab -u alice -"])
	})
}

func TestUfwFirewall(t *testing.T) {
	ctx := context.Background()
	fx := testutil.NewFakeExecutor()
	fw := adapters.NewUfwFirewall(fx)

	assert.False(t, fw.Available())
	fx.Paths["ufw"] = "/usr/sbin/ufw"
	assert.True(t, fw.Available())

	require.NoError(t, fw.Allow(ctx, 443))
	assert.Equal(t, []string{"ufw allow 443/tcp"}, fx.Calls)
}

func TestAptPackageManager(t *testing.T) {
	ctx := context.Background()
	fx := testutil.NewFakeExecutor()
	apt := adapters.NewAptPackageManager(fx)

	require.NoError(t, apt.Install(ctx, "python3-venv", "cron"))
	require.NoError(t, apt.Remove(ctx, "python3-venv"))

	assert.Equal(t, []string{
		"apt-get update -q",
		"apt-get install -y -q python3-venv cron",
		"apt-get remove -y -q python3-venv",
		"apt-get autoremove -y -q",
	}, fx.Calls)

	fx.Fail("apt-get remove")
	assert.Error(t, apt.Remove(ctx, "python3-venv"))
	assert.Equal(t, "apt-get remove -y -q python3-venv", fx.Calls[len(fx.Calls)-1])
}
