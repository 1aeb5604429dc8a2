package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file on change and invokes onChange with the new
// config. Invalid intermediate states (mid-write, parse errors) are skipped
// rather than propagated. The returned stop function closes the watcher.
func Watch(path string, onChange func(*Config)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory: editors replace files atomically, which drops
	// the watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				// Truncate-then-write saves expose an empty file for a
				// moment; an empty file parses as pure defaults, which is
				// not a config anyone wrote.
				data, readErr := os.ReadFile(path)
				if readErr != nil || len(bytes.TrimSpace(data)) == 0 {
					continue
				}
				cfg, loadErr := Load(path)
				if loadErr != nil {
					continue
				}
				onChange(cfg)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
