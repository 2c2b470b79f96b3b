package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// profileFile is the on-disk layout for YAML and TOML profile files.
type profileFile struct {
	Profiles []fileProfile `yaml:"profiles" toml:"profiles"`
}

// fileProfile is a CapabilityProfile as written in a file, where a missing
// enabled key means enabled.
type fileProfile struct {
	WorkerType  string   `yaml:"worker_type" toml:"worker_type"`
	Description string   `yaml:"description" toml:"description"`
	Category    string   `yaml:"category" toml:"category"`
	Enabled     *bool    `yaml:"enabled" toml:"enabled"`
	IdealTasks  []string `yaml:"ideal_tasks" toml:"ideal_tasks"`
	Skills      []string `yaml:"skills" toml:"skills"`
}

func (fp fileProfile) profile() CapabilityProfile {
	return CapabilityProfile{
		WorkerType:  fp.WorkerType,
		Description: fp.Description,
		Category:    fp.Category,
		Disabled:    fp.Enabled != nil && !*fp.Enabled,
		IdealTasks:  fp.IdealTasks,
		Skills:      fp.Skills,
	}
}

// Registry is an ordered set of capability profiles keyed by worker type.
// Registration order is the routing tie-break order.
type Registry struct {
	mu       sync.RWMutex
	profiles []CapabilityProfile
	index    map[string]int
}

// NewRegistry creates a registry seeded with the given profiles.
func NewRegistry(profiles ...CapabilityProfile) *Registry {
	r := &Registry{}
	r.profiles, r.index = buildIndex(profiles)
	return r
}

// buildIndex orders profiles the way successive Register calls would.
func buildIndex(profiles []CapabilityProfile) ([]CapabilityProfile, map[string]int) {
	out := make([]CapabilityProfile, 0, len(profiles))
	index := make(map[string]int, len(profiles))
	for _, p := range profiles {
		if i, ok := index[p.WorkerType]; ok {
			out[i] = p
			continue
		}
		index[p.WorkerType] = len(out)
		out = append(out, p)
	}
	return out, index
}

// Register adds a profile. A profile with an already registered worker type
// replaces the old one in place.
func (r *Registry) Register(p CapabilityProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[p.WorkerType]; ok {
		r.profiles[i] = p
		return
	}
	r.index[p.WorkerType] = len(r.profiles)
	r.profiles = append(r.profiles, p)
}

// Unregister removes the profile for a worker type. It reports whether one
// was registered.
func (r *Registry) Unregister(workerType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[workerType]
	if !ok {
		return false
	}
	rest := append(append([]CapabilityProfile(nil), r.profiles[:i]...), r.profiles[i+1:]...)
	r.profiles, r.index = buildIndex(rest)
	return true
}

// SetEnabled switches routing to a worker type on or off. It reports
// whether the worker type is registered.
func (r *Registry) SetEnabled(workerType string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[workerType]
	if !ok {
		return false
	}
	r.profiles[i].Disabled = !enabled
	return true
}

// Replace swaps the whole profile set atomically.
func (r *Registry) Replace(profiles []CapabilityProfile) {
	next, index := buildIndex(profiles)

	r.mu.Lock()
	r.profiles, r.index = next, index
	r.mu.Unlock()
}

// Profiles returns a snapshot of the registered profiles in order.
func (r *Registry) Profiles() []CapabilityProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CapabilityProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Enabled returns the profiles routing may choose from, in order.
func (r *Registry) Enabled() []CapabilityProfile {
	return r.filter(func(p CapabilityProfile) bool { return !p.Disabled })
}

// ListByCategory returns the profiles in a category, enabled or not.
func (r *Registry) ListByCategory(category string) []CapabilityProfile {
	return r.filter(func(p CapabilityProfile) bool { return strings.EqualFold(p.Category, category) })
}

// SkillsFor returns the skills offered by enabled profiles of a category,
// deduplicated in registration order.
func (r *Registry) SkillsFor(category string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.ListByCategory(category) {
		if p.Disabled {
			continue
		}
		for _, s := range p.Skills {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func (r *Registry) filter(keep func(CapabilityProfile) bool) []CapabilityProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []CapabilityProfile
	for _, p := range r.profiles {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the profile for a worker type.
func (r *Registry) Get(workerType string) (CapabilityProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[workerType]
	if !ok {
		return CapabilityProfile{}, false
	}
	return r.profiles[i], true
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// ErrNoProfiles is returned for a profile file that defines no profiles.
// Editors that truncate before writing produce such files briefly.
var ErrNoProfiles = errors.New("profile file defines no profiles")

// LoadFile reads profiles from a YAML (.yaml, .yml) or TOML (.toml) file.
func LoadFile(path string) ([]CapabilityProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var pf profileFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parse profiles %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &pf); err != nil {
			return nil, fmt.Errorf("parse profiles %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported profile file extension %q", filepath.Ext(path))
	}

	if len(pf.Profiles) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoProfiles)
	}
	profiles := make([]CapabilityProfile, 0, len(pf.Profiles))
	for i, fp := range pf.Profiles {
		if strings.TrimSpace(fp.WorkerType) == "" {
			return nil, fmt.Errorf("profile %d in %s has no worker_type", i, path)
		}
		profiles = append(profiles, fp.profile())
	}
	return profiles, nil
}

// LoadFile replaces the registry contents with the profiles in path.
func (r *Registry) LoadFile(path string) error {
	profiles, err := LoadFile(path)
	if err != nil {
		return err
	}
	r.Replace(profiles)
	return nil
}

// Watch reloads path whenever it changes until ctx is done.
// onReload, if non-nil, is called after every reload attempt with its error.
// A failed reload keeps the previous profiles.
func (r *Registry) Watch(ctx context.Context, path string, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory; editors often replace files by rename.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
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
				err := r.LoadFile(path)
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onReload != nil {
					onReload(err)
				}
			}
		}
	}()
	return nil
}
