package sumologic

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Mode names.
const (
	ModeMessages = "messages"
	ModeIntel    = "intel"
)

// SearchMode is a data-driven search configuration: the query template, how
// far back to look, and the poll cadence. Two modes ship by default: the broad
// message search and the CrowdStrike threat-intel lookup.
type SearchMode struct {
	Name         string
	Query        string // fmt template; the observable value fills the single %q verb
	Lookback     time.Duration
	FirstDelay   time.Duration
	PollInterval time.Duration
}

// BuildQuery renders the mode's query for one observable value.
func (m SearchMode) BuildQuery(observableValue string) string {
	return fmt.Sprintf(m.Query, observableValue)
}

// DefaultModes returns the built-in search modes.
func DefaultModes() map[string]SearchMode {
	return map[string]SearchMode{
		ModeMessages: {
			Name:         ModeMessages,
			Query:        "%q",
			Lookback:     30 * 24 * time.Hour,
			FirstDelay:   0,
			PollInterval: 2 * time.Second,
		},
		ModeIntel: {
			Name:         ModeIntel,
			Query:        "_sourceCategory = *crowdstrike* %q",
			Lookback:     15 * time.Minute,
			FirstDelay:   5 * time.Second,
			PollInterval: 5 * time.Second,
		},
	}
}

// ModeRegistry holds the active search modes. Modes can be overridden from a
// YAML file and hot-reloaded while serving.
type ModeRegistry struct {
	mu     sync.RWMutex
	modes  map[string]SearchMode
	logger *log.Logger
}

// NewModeRegistry returns a registry seeded with the built-in modes.
func NewModeRegistry(logger *log.Logger) *ModeRegistry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ModeRegistry{
		modes:  DefaultModes(),
		logger: logger,
	}
}

// Get looks up a mode by name.
func (r *ModeRegistry) Get(name string) (SearchMode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mode, ok := r.modes[name]
	return mode, ok
}

// Names returns the registered mode names.
func (r *ModeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modes))
	for name := range r.modes {
		names = append(names, name)
	}
	return names
}

// modesFile is the YAML override document.
type modesFile struct {
	Modes []struct {
		Name         string `yaml:"name"`
		Query        string `yaml:"query"`
		Lookback     string `yaml:"lookback"`
		FirstDelay   string `yaml:"first_delay"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"modes"`
}

// LoadFile merges mode overrides from a YAML file into the registry. Fields
// left empty in the file keep their current value.
func (r *ModeRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read modes file: %w", err)
	}

	var doc modesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse modes file %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range doc.Modes {
		if entry.Name == "" {
			return fmt.Errorf("modes file %s: entry without a name", path)
		}
		mode, ok := r.modes[entry.Name]
		if !ok {
			mode = SearchMode{Name: entry.Name}
		}
		if entry.Query != "" {
			mode.Query = entry.Query
		}
		if err := applyDuration(&mode.Lookback, entry.Lookback); err != nil {
			return fmt.Errorf("mode %s lookback: %w", entry.Name, err)
		}
		if err := applyDuration(&mode.FirstDelay, entry.FirstDelay); err != nil {
			return fmt.Errorf("mode %s first_delay: %w", entry.Name, err)
		}
		if err := applyDuration(&mode.PollInterval, entry.PollInterval); err != nil {
			return fmt.Errorf("mode %s poll_interval: %w", entry.Name, err)
		}
		r.modes[entry.Name] = mode
	}
	r.logger.Printf("Loaded %d mode override(s) from %s", len(doc.Modes), path)
	return nil
}

func applyDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("negative duration %s", raw)
	}
	*dst = d
	return nil
}

// Watch reloads the modes file whenever it changes, until ctx is cancelled.
// Editors replace files rather than writing in place, so the watch is on the
// parent directory and filtered by name.
func (r *ModeRegistry) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create modes watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.LoadFile(path); err != nil {
				r.logger.Printf("Modes reload failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Printf("Modes watcher error: %v", err)
		}
	}
}
