package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prodintel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 3\n"), 0o644))

	changed := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 9\n"), 0o644))

	select {
	case cfg := <-changed:
		require.Equal(t, 9, cfg.Retrieval.TopK)
	case <-time.After(5 * time.Second):
		t.Fatal("config change never observed")
	}
}

func TestWatch_SkipsInvalidIntermediateState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prodintel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 3\n"), 0o644))

	changed := make(chan *Config, 4)
	stop, err := Watch(path, func(cfg *Config) { changed <- cfg })
	require.NoError(t, err)
	defer stop()

	// Neither a truncated-empty file nor a half-written one may reach the
	// callback. An empty file is the dangerous case: it parses cleanly into
	// pure defaults.
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: ["), 0o644))

	select {
	case cfg := <-changed:
		t.Fatalf("callback fired for invalid intermediate state: top_k=%d", cfg.Retrieval.TopK)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 7\n"), 0o644))

	select {
	case cfg := <-changed:
		require.Equal(t, 7, cfg.Retrieval.TopK)
	case <-time.After(5 * time.Second):
		t.Fatal("valid config change never observed")
	}
}
