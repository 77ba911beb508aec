package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func testRuntime(buf *bytes.Buffer) (*Runtime, *int) {
	code := -1
	rt := &Runtime{
		Service:  "test",
		Instance: "web.1",
		Config:   &config.Config{App: config.AppConfig{Env: "dev"}},
		Logger:   logger.New(logger.Options{Output: buf}),
		exit:     func(c int) { code = c },
	}
	return rt, &code
}

func TestCloseRunsNewestFirst(t *testing.T) {
	var buf bytes.Buffer
	rt, _ := testRuntime(&buf)
	var order []string
	rt.onClose("database", func() error { order = append(order, "database"); return nil })
	rt.onClose("redis", func() error { order = append(order, "redis"); return errors.New("conn reset") })

	rt.Close()
	rt.Close()

	assert.Equal(t, []string{"redis", "database"}, order)
	assert.Contains(t, buf.String(), `"client":"redis"`)
}

func TestRunTreatsCancellationAsCleanStop(t *testing.T) {
	var buf bytes.Buffer
	rt, code := testRuntime(&buf)
	closed := false
	rt.onClose("pubsub", func() error { closed = true; return nil })

	rt.Run(func(ctx context.Context) error { return context.Canceled })

	assert.Equal(t, -1, *code)
	assert.True(t, closed)
	assert.Contains(t, buf.String(), "test shutting down gracefully")
}

func TestRunFailsOnError(t *testing.T) {
	var buf bytes.Buffer
	rt, code := testRuntime(&buf)
	closed := false
	rt.onClose("database", func() error { closed = true; return nil })

	rt.Run(func(ctx context.Context) error { return errors.New("listen tcp: address in use") })

	assert.Equal(t, 1, *code)
	assert.True(t, closed)
	assert.Contains(t, buf.String(), "test stopped unexpectedly")
}

func TestRunContextCarriesProcessFields(t *testing.T) {
	var buf bytes.Buffer
	rt, _ := testRuntime(&buf)
	rt.Run(func(ctx context.Context) error {
		rt.Logger.Info(ctx, "inside")
		return nil
	})
	require.Contains(t, buf.String(), `"instance":"web.1"`)
	assert.Contains(t, buf.String(), `"serviceKind":"test"`)
}

func TestInstanceID(t *testing.T) {
	t.Setenv("STOREFRONT_WORKER_ID", "")
	t.Setenv("DYNO", "worker.3")
	assert.Equal(t, "worker.3", InstanceID())

	t.Setenv("STOREFRONT_WORKER_ID", "cron-a")
	assert.Equal(t, "cron-a", InstanceID())
}
