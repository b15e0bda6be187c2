package devserver

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

const watchDebounce = 100 * time.Millisecond

// fileWatcher reports changes to files under root matching any of the globs.
type fileWatcher struct {
	root     string
	globs    []glob.Glob
	debounce time.Duration
}

func newFileWatcher(root string, patterns []string) (*fileWatcher, error) {
	fw := &fileWatcher{root: root, debounce: watchDebounce}
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.TrimPrefix(filepath.ToSlash(pattern), "./"), '/')
		if err != nil {
			return nil, err
		}
		fw.globs = append(fw.globs, g)
	}
	return fw, nil
}

// Match reports whether a path relative to root is watched.
func (fw *fileWatcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range fw.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Run watches until ctx is cancelled. Bursts of events are coalesced and
// onChange receives the last matching path.
func (fw *fileWatcher) Run(ctx context.Context, onChange func(rel string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := fw.addTree(watcher, fw.root); err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		pending string
		timer   *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	fire := func() {
		mu.Lock()
		rel := pending
		mu.Unlock()
		onChange(rel)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("File watcher error")
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := fw.addTree(watcher, ev.Name); err != nil {
						log.Warn().Err(err).Str("dir", ev.Name).Msg("Failed to watch directory")
					}
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}

			rel, err := filepath.Rel(fw.root, ev.Name)
			if err != nil || !fw.Match(rel) {
				continue
			}

			log.Debug().Str("file", rel).Str("op", ev.Op.String()).Msg("Watched file changed")

			mu.Lock()
			pending = filepath.ToSlash(rel)
			if timer == nil {
				timer = time.AfterFunc(fw.debounce, fire)
			} else {
				timer.Reset(fw.debounce)
			}
			mu.Unlock()
		}
	}
}

// addTree watches dir and every directory below it, skipping hidden
// directories and node_modules.
func (fw *fileWatcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		base := d.Name()
		if name != dir && (strings.HasPrefix(base, ".") || base == "node_modules") {
			return filepath.SkipDir
		}
		return watcher.Add(name)
	})
}
