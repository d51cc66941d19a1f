// Package profile keeps named launch profiles and the offline player session.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/yagualauncher/yagua/internal/utils"
)

const DefaultName = "default"

var (
	ErrNotFound    = errors.New("profile: not found")
	ErrInvalidName = errors.New("profile: invalid name")
)

// Profile customizes one launch.
type Profile struct {
	Name     string            `json:"name"`
	Manifest string            `json:"manifest,omitempty"`
	MemoryMB int               `json:"memoryMb,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
}

type storeFile struct {
	Selected string              `json:"selected,omitempty"`
	Profiles map[string]*Profile `json:"profiles"`
}

// Store is a JSON file of profiles. It is safe for concurrent use.
type Store struct {
	path string

	mu       sync.RWMutex
	selected string
	profiles map[string]*Profile
}

// Load reads the store at path. A missing file is an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, profiles: make(map[string]*Profile)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: load: %w", err)
	}

	var f storeFile
	if err := utils.JSONUnmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("profile: decode %s: %w", path, err)
	}
	for name, p := range f.Profiles {
		if p == nil {
			continue
		}
		p.Name = name
		s.profiles[name] = p
	}
	s.selected = f.Selected
	return s, nil
}

// Save writes the store atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	f := storeFile{Selected: s.selected, Profiles: s.profiles}
	data, err := utils.JSONMarshalIndent(f, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("profile: encode: %w", err)
	}
	if err := utils.AtomicWriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("profile: save: %w", err)
	}
	return nil
}

func (s *Store) Get(name string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return clone(p), nil
}

// Put adds or replaces a profile.
func (s *Store) Put(p Profile) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrInvalidName
	}
	if p.MemoryMB < 0 {
		return fmt.Errorf("profile: %q: negative memory", p.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := clone(&p)
	s.profiles[p.Name] = &c
	return nil
}

func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.profiles, name)
	if s.selected == name {
		s.selected = ""
	}
	return nil
}

// Names returns profile names sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Select(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.selected = name
	return nil
}

// Selected returns the selected profile, falling back to DefaultName and then
// to an empty default profile.
func (s *Store) Selected() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range []string{s.selected, DefaultName} {
		if p, ok := s.profiles[name]; ok && name != "" {
			return clone(p)
		}
	}
	return Profile{Name: DefaultName}
}

func clone(p *Profile) Profile {
	c := *p
	c.Args = append([]string(nil), p.Args...)
	if p.Env != nil {
		c.Env = make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			c.Env[k] = v
		}
	}
	return c
}
