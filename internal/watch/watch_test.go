package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReportsPresetChanges(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan []string, 1)
	w := &Watcher{
		Dirs: []string{dir},
		OnChange: func(paths []string) {
			select {
			case changed <- paths:
			default:
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewer.md"), []byte("---\nname: reviewer\n---\nprompt"), 0o644))

	select {
	case paths := <-changed:
		require.NotEmpty(t, paths)
		require.Contains(t, paths[0], "reviewer.md")
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherIgnoresUnrelatedExtensions(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan []string, 1)
	w := &Watcher{
		Dirs:     []string{dir},
		OnChange: func(paths []string) { changed <- paths },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o644))

	select {
	case paths := <-changed:
		t.Fatalf("unexpected change report: %v", paths)
	case <-time.After(700 * time.Millisecond):
	}
}

func TestWatcherSkipsMissingDirs(t *testing.T) {
	w := &Watcher{
		Dirs:     []string{filepath.Join(t.TempDir(), "absent")},
		OnChange: func([]string) {},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
