//go:build integration

// Package containers starts throwaway brokers for integration tests.
// Everything here is behind the integration build tag.
package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// RequireDocker skips the test when the Docker daemon cannot be reached.
func RequireDocker(ctx context.Context, t *testing.T) {
	t.Helper()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		t.Skipf("Docker is not available, skipping integration test: %v", err)
	}
	defer provider.Close()

	if _, err := provider.DaemonHost(ctx); err != nil {
		t.Skipf("Docker daemon is not reachable, skipping integration test: %v", err)
	}
}
