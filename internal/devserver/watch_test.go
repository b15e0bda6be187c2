package devserver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileWatcher_Match(t *testing.T) {
	fw, err := newFileWatcher(t.TempDir(), []string{"./**/*.php", "./*.php"})
	require.NoError(t, err)

	tests := []struct {
		rel   string
		match bool
	}{
		{rel: "index.php", match: true},
		{rel: "templates/header.php", match: true},
		{rel: "templates/partials/nav.php", match: true},
		{rel: "src/index.js", match: false},
		{rel: "style.css", match: false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			require.Equal(t, tt.match, fw.Match(tt.rel))
		})
	}
}

func TestFileWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "templates", "header.php"), "<?php ?>")

	fw, err := newFileWatcher(dir, []string{"**/*.php"})
	require.NoError(t, err)
	fw.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		changed []string
	)
	done := make(chan error, 1)
	go func() {
		done <- fw.Run(ctx, func(rel string) {
			mu.Lock()
			changed = append(changed, rel)
			mu.Unlock()
		})
	}()

	// give the watcher time to register directories
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "notes.txt"), []byte("ignored"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "header.php"), []byte("<?php echo 1; ?>"), 0600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, "templates/header.php", changed[0])
	mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}

func TestFileWatcher_invalidGlob(t *testing.T) {
	_, err := newFileWatcher(t.TempDir(), []string{"[unclosed"})
	require.Error(t, err)
}
