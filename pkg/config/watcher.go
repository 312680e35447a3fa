package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/socratic-council/council/pkg/log"
)

// ChangeCallback is invoked with the old and new configuration whenever
// the watched file is reloaded.
type ChangeCallback func(oldConfig, newConfig *Config)

// Watcher watches a configuration file on disk and reloads it on change,
// so credential rotation or agent roster edits apply without a restart.
type Watcher struct {
	mu              sync.RWMutex
	config          *Config
	configPath      string
	viper           *viper.Viper
	callbacks       []ChangeCallback
	stopChan        chan struct{}
	reloadInProcess bool
}

// NewWatcher loads the initial configuration and prepares file watching.
func NewWatcher(configPath string) (*Watcher, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load initial config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config with viper: %w", err)
	}

	w := &Watcher{
		config:     cfg,
		configPath: configPath,
		viper:      v,
		stopChan:   make(chan struct{}),
	}

	log.WithField("config_path", configPath).Info("config watcher initialized")
	return w, nil
}

// Config returns the current configuration, safe for concurrent use.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback invoked whenever the file reloads
// successfully. Each callback runs in its own goroutine, so callbacks run
// concurrently and in no fixed order; a panic in one is recovered and
// logged.
func (w *Watcher) OnChange(callback ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins monitoring the file for changes. It blocks until Stop is
// called, so callers typically run it in a goroutine.
func (w *Watcher) Start() {
	w.viper.OnConfigChange(w.handleChange)
	w.viper.WatchConfig()

	log.WithField("config_path", w.configPath).Info("watching config file for changes")
	<-w.stopChan
}

// Stop ends the watch loop.
func (w *Watcher) Stop() {
	close(w.stopChan)
	log.Info("stopped watching config file")
}

func (w *Watcher) handleChange(e fsnotify.Event) {
	w.mu.Lock()
	if w.reloadInProcess {
		w.mu.Unlock()
		return
	}
	w.reloadInProcess = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.reloadInProcess = false
		w.mu.Unlock()
	}()

	log.WithFields(map[string]interface{}{
		"event":       e.Op.String(),
		"config_path": e.Name,
	}).Info("config file change detected")

	newConfig, err := LoadConfig(w.configPath)
	if err != nil {
		log.WithError(err).WithField("config_path", w.configPath).Error("failed to reload config")
		return
	}

	w.mu.Lock()
	oldConfig := w.config
	w.config = newConfig
	callbacks := w.callbacks
	w.mu.Unlock()

	log.WithFields(map[string]interface{}{
		"config_path": w.configPath,
		"agents":      len(newConfig.Agents),
		"max_turns":   newConfig.Session.MaxTurns,
	}).Info("config reloaded successfully")

	for _, callback := range callbacks {
		go func(cb ChangeCallback) {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Error("config change callback panicked")
				}
			}()
			cb(oldConfig, newConfig)
		}(callback)
	}
}
