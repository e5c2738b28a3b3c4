package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SecretSet is the on-disk root secret file format.
type SecretSet struct {
	Active  string            `yaml:"active"`
	Secrets map[string]string `yaml:"secrets"` // id -> base64 root secret
}

// LoadSecretSet reads and parses a root secret file.
func LoadSecretSet(path string) (*SecretSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	var set SecretSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	if set.Active == "" {
		return nil, fmt.Errorf("secrets file must name an active secret id")
	}
	if len(set.Secrets) == 0 {
		return nil, fmt.Errorf("secrets file must contain at least one secret")
	}

	return &set, nil
}

// SecretsWatcher reloads the root secret file when it changes on disk, so
// secret rotation does not require a restart.
type SecretsWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*SecretSet) error
	logger  *logrus.Logger
	done    chan struct{}
}

// NewSecretsWatcher starts watching path. onLoad is called with each
// successfully parsed secret set; a load or callback failure keeps the
// previous set in effect.
func NewSecretsWatcher(path string, onLoad func(*SecretSet) error, logger *logrus.Logger) (*SecretsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file: editors and secret managers
	// typically replace the file by rename, which drops a file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	sw := &SecretsWatcher{
		path:    path,
		watcher: watcher,
		onLoad:  onLoad,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go sw.run()
	return sw, nil
}

func (sw *SecretsWatcher) run() {
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(sw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			sw.reload()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.WithError(err).Warn("Secrets file watcher error")
		case <-sw.done:
			return
		}
	}
}

func (sw *SecretsWatcher) reload() {
	set, err := LoadSecretSet(sw.path)
	if err != nil {
		sw.logger.WithError(err).Error("Failed to reload secrets file, keeping previous secrets")
		return
	}
	if err := sw.onLoad(set); err != nil {
		sw.logger.WithError(err).Error("Failed to apply reloaded secrets, keeping previous secrets")
		return
	}
	sw.logger.WithField("active_id", set.Active).Info("Root secrets reloaded")
}

// Stop stops the watcher.
func (sw *SecretsWatcher) Stop() error {
	close(sw.done)
	return sw.watcher.Close()
}
