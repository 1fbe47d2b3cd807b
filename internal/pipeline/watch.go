package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions controls Watch. IncludeExts and SkipHidden behave as in DirOptions.
type WatchOptions struct {
	IncludeExts []string
	SkipHidden  bool
	// InitialScan imports files already present under root before watching.
	InitialScan bool
	// Debounce coalesces the create/write bursts an editor or copy produces.
	Debounce time.Duration
}

const defaultDebounce = 500 * time.Millisecond

// Watch imports rubric files as they appear under root (recursively) until
// ctx is cancelled. Each outcome is passed to onResult; per-file failures
// never stop the watch.
func (im *Importer) Watch(ctx context.Context, ownerID, root string, opts WatchOptions, onResult func(FileResult)) error {
	if strings.TrimSpace(root) == "" {
		return errors.New("root path is required")
	}
	if onResult == nil {
		onResult = func(FileResult) {}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	exts := extSet(opts.IncludeExts)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			im.Logger.Warn("rubric.watch.close_failed", "error", err)
		}
	}()

	var existing []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if opts.SkipHidden && path != root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if opts.InitialScan && exts.matches(path) {
			existing = append(existing, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	im.Logger.Info("rubric.watch.start", "owner_id", ownerID, "root", root, "existing", len(existing))

	for _, p := range existing {
		onResult(im.importFile(ctx, ownerID, p))
	}

	pending := map[string]struct{}{}
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			im.Logger.Info("rubric.watch.stop", "owner_id", ownerID, "root", root)
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if opts.SkipHidden && hidden(name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.Add(ev.Name); err != nil {
						im.Logger.Warn("rubric.watch.add_dir_failed", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if exts.matches(ev.Name) && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				pending[ev.Name] = struct{}{}
				fire = time.After(opts.Debounce)
			}

		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				if _, err := os.Stat(p); err != nil {
					// removed or renamed away before it settled
					continue
				}
				onResult(im.importFile(ctx, ownerID, p))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.Logger.Error("rubric.watch.error", "error", err)
		}
	}
}
