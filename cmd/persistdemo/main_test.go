package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-saas/persist/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
logger:
  level: error
units:
  - name: orders
    driver: gorm
    properties:
      dsn: %s
  - name: audit
    tag: audit
    driver: sql
    properties:
      dsn: %s
  - name: events
    tag: events
    driver: event
`, filepath.Join(dir, "orders.db"), filepath.Join(dir, "audit.db"))
	file := filepath.Join(dir, "persist.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestUnitsCmd(t *testing.T) {
	out := execute(t, "units", "--config", writeConfig(t))
	assert.Equal(t, "orders\t-\tgorm\naudit\taudit\tsql\nevents\tevents\tevent\n", out)
}

func TestRunCmd(t *testing.T) {
	out := execute(t, "run", "--config", writeConfig(t), "--fail", "socks", "shoes", "socks", "hat")

	assert.Contains(t, out, "shoes\tplaced\n")
	assert.Contains(t, out, "socks\trolled back: order failed: socks\n")
	assert.Contains(t, out, "hat\tplaced\n")
	assert.Contains(t, out, "orders\t2 orders\n")
	assert.Contains(t, out, "audit\t2 orders\n")
}

func TestShopRollsBackEveryUnit(t *testing.T) {
	cfg, err := config.Load(writeConfig(t))
	require.NoError(t, err)
	ctx := context.Background()
	s, err := newShop(ctx, cfg, log.DefaultLogger)
	require.NoError(t, err)
	defer s.Close(ctx)

	err = s.PlaceOrder(ctx, "socks", true)
	assert.ErrorIs(t, err, errOrderFailed)
	require.NoError(t, s.PlaceOrder(ctx, "shoes", false))

	report, err := s.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders\t1 orders", "audit\t1 orders"}, report)
}

func TestUnknownDriver(t *testing.T) {
	_, err := unitConfig(config.UnitConfig{Name: "cache", Driver: "redis"}, log.DefaultLogger)
	assert.ErrorContains(t, err, "unknown driver redis")
}
