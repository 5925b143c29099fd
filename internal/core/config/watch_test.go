package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed: 1\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c Config) {
			select {
			case applied <- c:
			default:
			}
		})
	}()

	// The watcher registers asynchronously and a truncated file may be
	// observed first; keep rewriting until the new speed arrives.
	var got Config
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case got = <-applied:
			if got.Speed == 3 {
				break wait
			}
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("speed: 3\n"), 0o600))
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
	assert.Equal(t, 3.0, got.Speed)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "world.yaml"), nil, func(Config) {})
	assert.Error(t, err)
}
