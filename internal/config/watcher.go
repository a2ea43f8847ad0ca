package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the .env file and applies the settings that are safe to
// change at runtime. Today that is LOG_LEVEL only.
type Watcher struct {
	envPath      string
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	stopOnce     sync.Once
	onLevel      func(level string)
	lastLevel    string
	debounceWait time.Duration
}

// NewWatcher creates a watcher for envPath. onLevel is called with the new
// LOG_LEVEL whenever it changes.
func NewWatcher(envPath, currentLevel string, onLevel func(level string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(envPath)
	if err != nil {
		abs = envPath
	}
	return &Watcher{
		envPath:      abs,
		watcher:      fw,
		stopChan:     make(chan struct{}),
		onLevel:      onLevel,
		lastLevel:    strings.ToLower(strings.TrimSpace(currentLevel)),
		debounceWait: 100 * time.Millisecond,
	}, nil
}

// Start begins watching the directory that holds the .env file.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.envPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.watchForChanges()
	log.Info().Str("env_path", w.envPath).Msg("Watching .env for runtime changes")
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.envPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce - wait a bit for write to complete
			time.Sleep(w.debounceWait)
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	envMap, err := godotenv.Read(w.envPath)
	if err != nil {
		log.Warn().Err(err).Str("path", w.envPath).Msg("Failed to re-read .env file")
		return
	}
	level := strings.ToLower(strings.TrimSpace(envMap["LOG_LEVEL"]))
	if level == "" || level == w.lastLevel {
		return
	}
	log.Info().Str("from", w.lastLevel).Str("to", level).Msg("Applying LOG_LEVEL change from .env")
	w.lastLevel = level
	if w.onLevel != nil {
		w.onLevel(level)
	}
}
