package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader loads Midnight configuration from flags, environment, project
// and user config files, and built-in defaults, in that precedence
// order.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	projectDir string
	mu         sync.Mutex
}

// NewLoader creates a Loader with Midnight's env prefix.
func NewLoader() *Loader {
	return &Loader{v: viper.New(), envPrefix: "MIDNIGHT"}
}

// NewLoaderWithViper wraps an existing viper instance, so CLI flags
// already bound to it are honored.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v, envPrefix: "MIDNIGHT"}
}

// WithConfigFile pins an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ProjectDir returns the resolved project root, available after Load.
func (l *Loader) ProjectDir() string {
	return l.projectDir
}

// Load reads configuration from all sources.
//
// Precedence (highest to lowest):
//  1. CLI flags (bound onto the Loader's viper instance by the caller)
//  2. Environment variables (MIDNIGHT_*)
//  3. Project config (.midnight/config.yaml)
//  4. User config (~/.config/midnight/config.yaml)
//  5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".midnight")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "midnight"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	l.projectDir = l.resolveProjectDir()
	return &cfg, nil
}

func (l *Loader) resolveProjectDir() string {
	if configPath := l.v.ConfigFileUsed(); configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			dir := filepath.Dir(abs)
			if filepath.Base(dir) == ".midnight" {
				return filepath.Dir(dir)
			}
			return dir
		}
	}
	wd, _ := os.Getwd()
	return wd
}

// WatchReload re-reads the config file on every write and invokes
// onChange with the freshly parsed Config. Malformed writes are
// swallowed — onChange is only called after a successful Unmarshal, so a
// transient half-written file never reaches the caller. Returns a
// stop function; calling it closes the underlying watcher.
func (l *Loader) WatchReload(onChange func(*Config)) (stop func(), err error) {
	path := l.v.ConfigFileUsed()
	if path == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				l.mu.Lock()
				if err := l.v.ReadInConfig(); err == nil {
					var cfg Config
					if err := l.v.Unmarshal(&cfg); err == nil {
						l.mu.Unlock()
						onChange(&cfg)
						continue
					}
				}
				l.mu.Unlock()
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				_ = watcher.Close()
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Save writes cfg back to the project config file atomically: temp file
// in the same directory, fsync, rename over the target.
func Save(path string, yamlContent []byte) error {
	return AtomicWrite(path, yamlContent)
}
