package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is one named set of connection settings kept in the config store.
type Profile struct {
	Tenant       string `yaml:"tenant,omitempty"`
	URL          string `yaml:"url,omitempty"`
	SystemURL    string `yaml:"system_url,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	Authority    string `yaml:"authority,omitempty"`
}

// Masked returns a copy safe for display.
func (p Profile) Masked() Profile {
	p.ClientSecret = mask(p.ClientSecret)
	return p
}

// NamedProfile pairs a profile with its name.
type NamedProfile struct {
	Name   string
	Active bool
	Profile
}

type storeFile struct {
	Active  string             `yaml:"active,omitempty"`
	Configs map[string]Profile `yaml:"configs,omitempty"`
}

// Store persists named configurations in a YAML file.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{Path: path}
}

// Add saves p under name. An existing entry is only replaced when force is set.
// The first configuration saved becomes the active one.
func (s *Store) Add(name string, p Profile, force bool) error {
	if err := validateName(name); err != nil {
		return err
	}
	if p.URL == "" {
		return fmt.Errorf("configuration %q needs a url", name)
	}

	f, err := s.read()
	if err != nil {
		return err
	}
	if _, exists := f.Configs[name]; exists && !force {
		return fmt.Errorf("a configuration named %q already exists, use --force to overwrite it", name)
	}
	f.Configs[name] = p
	if f.Active == "" {
		f.Active = name
	}
	return s.write(f)
}

// SetActive marks name as the configuration applied by default.
func (s *Store) SetActive(name string) error {
	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Configs[name]; !ok {
		return fmt.Errorf("no configuration named %q in %s", name, s.Path)
	}
	f.Active = name
	return s.write(f)
}

// Remove deletes name. Removing the active configuration leaves none active.
func (s *Store) Remove(name string) error {
	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Configs[name]; !ok {
		return fmt.Errorf("no configuration named %q in %s", name, s.Path)
	}
	delete(f.Configs, name)
	if f.Active == name {
		f.Active = ""
	}
	return s.write(f)
}

// List returns every stored configuration sorted by name.
func (s *Store) List() ([]NamedProfile, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}

	out := make([]NamedProfile, 0, len(f.Configs))
	for name, p := range f.Configs {
		out = append(out, NamedProfile{Name: name, Active: name == f.Active, Profile: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) read() (*storeFile, error) {
	f := &storeFile{}
	data, err := os.ReadFile(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file %s: %w", s.Path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", s.Path, err)
		}
	}
	if f.Configs == nil {
		f.Configs = make(map[string]Profile)
	}
	return f, nil
}

func (s *Store) write(f *storeFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("error encoding config file: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	// Holds client secrets.
	return os.WriteFile(s.Path, data, 0o600)
}

// Names become koanf key segments, so the key delimiter is not allowed.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("configuration name is required")
	}
	if strings.ContainsAny(name, ". \t") {
		return fmt.Errorf("configuration name %q may not contain dots or whitespace", name)
	}
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}
