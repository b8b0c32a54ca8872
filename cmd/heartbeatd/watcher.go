package main

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"svckit/internal/logger"
)

// configWatcher reloads the configuration file when it changes on disk. The
// parent directory is watched rather than the file itself so editors that
// replace the file (write to temp, rename over) are still seen.
type configWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	stop     chan struct{}
}

func newConfigWatcher(path string, onChange func(*Config)) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &configWatcher{
		path:     path,
		watcher:  w,
		onChange: onChange,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins watching for changes.
func (cw *configWatcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return err
	}
	logger.WithComponent("config-watcher").Info().Str("path", cw.path).Msg("watching configuration")
	go cw.watch()
	return nil
}

// Close stops the watcher.
func (cw *configWatcher) Close() error {
	close(cw.stop)
	return cw.watcher.Close()
}

func (cw *configWatcher) watch() {
	log := logger.WithComponent("config-watcher")
	filename := filepath.Base(cw.path)

	for {
		select {
		case <-cw.stop:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				log.Info().Str("event", event.Op.String()).Msg("configuration changed, reloading")
				cfg, err := Load(cw.path)
				if err != nil {
					log.Error().Err(err).Msg("failed to reload configuration")
					continue
				}
				if cw.onChange != nil {
					cw.onChange(cfg)
				}
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("configuration watcher error")
		}
	}
}
