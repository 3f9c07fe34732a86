package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Run("none keeps no-op providers", func(t *testing.T) {
		shutdown, err := Setup(context.Background(), ExporterNone, "test")
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	})

	t.Run("stdout installs providers", func(t *testing.T) {
		shutdown, err := Setup(context.Background(), ExporterStdout, "test")
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	})

	t.Run("rejects unknown exporter", func(t *testing.T) {
		_, err := Setup(context.Background(), "jaeger", "test")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown exporter")
	})
}

func TestHTTPClient(t *testing.T) {
	t.Parallel()

	client := HTTPClient(3 * time.Second)
	require.Equal(t, 3*time.Second, client.Timeout)
	require.NotNil(t, client.Transport)
}
