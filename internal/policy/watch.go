package policy

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tabwarden/tabwarden/internal/logging"
)

const (
	watchDebounce = 500 * time.Millisecond
	pollInterval  = 2 * time.Second
)

// Watch re-loads the document whenever the file changes and invokes
// onChange with the new snapshot. The parent directory is watched, not
// the file, because the options UI and Save both replace it by rename.
// Blocks until ctx is cancelled. Falls back to polling when the
// watcher cannot start.
func (s *Store) Watch(ctx context.Context, log *logging.Logger, onChange func(*Snapshot)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("file watcher unavailable, polling instead", "err", err)
		return s.poll(ctx, log, onChange)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		log.Warn("cannot watch policy directory, polling instead", "dir", dir, "err", err)
		return s.poll(ctx, log, onChange)
	}

	base := filepath.Base(s.path)

	// Debounce: wait 500ms after the last write before reloading.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, func() {
					s.reload(log, onChange)
				})
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("policy watcher error", "err", werr)
		}
	}
}

// poll re-reads the document on a fixed interval, comparing hashes to
// detect changes. Used where inotify is unavailable.
func (s *Store) poll(ctx context.Context, log *logging.Logger, onChange func(*Snapshot)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.reload(log, onChange)
		}
	}
}

// reload validates the file and swaps the snapshot. An unchanged hash
// is skipped; an invalid file keeps the running snapshot.
func (s *Store) reload(log *logging.Logger, onChange func(*Snapshot)) {
	doc, hash, err := LoadWithHash(s.path)
	if err != nil {
		log.Error("policy reload failed, keeping current policy", "err", err)
		return
	}
	if cur := s.Current(); cur != nil && cur.Hash == hash {
		return
	}
	snap, err := NewSnapshot(doc, hash)
	if err != nil {
		log.Error("policy reload failed, keeping current policy", "err", err)
		return
	}
	s.Replace(snap)
	log.Info("policy reloaded", "hash", hash, "profile", snap.Active.ID)
	if onChange != nil {
		onChange(snap)
	}
}
