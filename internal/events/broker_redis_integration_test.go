//go:build redis_integration

package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	b, err := NewRedis(url, "vrpgoal:test", logr.Discard())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Ping(context.Background()))

	ch := b.Subscribe("run")
	b.Publish("run", Event{Type: TypeRunFinished, RunID: "run", Fitness: 3})
	select {
	case got := <-ch:
		require.Equal(t, TypeRunFinished, got.Type)
		require.Equal(t, 3.0, got.Fitness)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	b.Unsubscribe("run", ch)
}
