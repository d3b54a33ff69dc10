// Package instance holds the credential store and the instance router.
//
// An Instance is one independently-configured remote ServiceNow-family
// endpoint with its own base URL and credential. Instances are loaded once
// at startup and never mutated afterward; the Store is safe to share.
//
// The Router is the only component allowed to decide which instance an
// operation runs against. It hands callers an independently-constructed
// client binding instead of mutating any shared client in place.
package instance

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Instance is one configured remote endpoint. Immutable after load.
type Instance struct {
	Name     string `mapstructure:"name"`
	BaseURL  string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Default  bool   `mapstructure:"default"`
}

// NotFoundError is returned when a named instance is not configured.
// It is raised synchronously by Resolve, before any network call.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("instance not found: %q", e.Name)
}

// Store holds the loaded instances. Read-only after Load.
type Store struct {
	instances []Instance
	byName    map[string]int
	def       int
}

// envPrefix is the prefix for single-instance environment fallback
// (SNOWGATE_INSTANCE_URL, SNOWGATE_INSTANCE_USERNAME, SNOWGATE_INSTANCE_PASSWORD).
const envPrefix = "SNOWGATE_INSTANCE"

// Load reads instance configuration from the given YAML file, falling back
// to environment variables when the file is absent. Exactly one instance
// must be marked default; when the file defines a single instance without
// an explicit default, that instance becomes the default.
func Load(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) || strings.Contains(err.Error(), "no such file") {
			return loadFromEnv()
		}
		return nil, fmt.Errorf("instance: read config %s: %w", path, err)
	}

	var raw struct {
		Instances []Instance `mapstructure:"instances"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("instance: parse config %s: %w", path, err)
	}
	if len(raw.Instances) == 0 {
		return loadFromEnv()
	}
	return newStore(raw.Instances)
}

// loadFromEnv builds a single-instance store from environment variables.
func loadFromEnv() (*Store, error) {
	url := os.Getenv(envPrefix + "_URL")
	if url == "" {
		return nil, fmt.Errorf("instance: no config file and %s_URL is unset", envPrefix)
	}
	return newStore([]Instance{{
		Name:     "default",
		BaseURL:  url,
		Username: os.Getenv(envPrefix + "_USERNAME"),
		Password: os.Getenv(envPrefix + "_PASSWORD"),
		Default:  true,
	}})
}

// newStore validates the instance list and builds the lookup index.
func newStore(instances []Instance) (*Store, error) {
	s := &Store{
		instances: instances,
		byName:    make(map[string]int, len(instances)),
		def:       -1,
	}
	for i, inst := range instances {
		if strings.TrimSpace(inst.Name) == "" {
			return nil, fmt.Errorf("instance: entry %d has no name", i)
		}
		if strings.TrimSpace(inst.BaseURL) == "" {
			return nil, fmt.Errorf("instance: %q has no url", inst.Name)
		}
		if _, dup := s.byName[inst.Name]; dup {
			return nil, fmt.Errorf("instance: duplicate name %q", inst.Name)
		}
		s.byName[inst.Name] = i
		if inst.Default {
			if s.def >= 0 {
				return nil, fmt.Errorf("instance: both %q and %q marked default",
					instances[s.def].Name, inst.Name)
			}
			s.def = i
		}
	}
	if s.def < 0 {
		if len(instances) == 1 {
			s.def = 0
			s.instances[0].Default = true
		} else {
			return nil, fmt.Errorf("instance: no instance marked default")
		}
	}
	// Normalize base URLs once so clients never deal with trailing slashes.
	for i := range s.instances {
		s.instances[i].BaseURL = strings.TrimRight(s.instances[i].BaseURL, "/")
	}
	return s, nil
}

// NewStore builds a store from an already-validated slice. Used by tests
// and by callers that load credentials elsewhere.
func NewStore(instances []Instance) (*Store, error) {
	return newStore(instances)
}

// List returns all configured instances.
func (s *Store) List() []Instance {
	out := make([]Instance, len(s.instances))
	copy(out, s.instances)
	return out
}

// Get returns the named instance or a *NotFoundError.
func (s *Store) Get(name string) (Instance, error) {
	i, ok := s.byName[name]
	if !ok {
		return Instance{}, &NotFoundError{Name: name}
	}
	return s.instances[i], nil
}

// Default returns the instance marked default at load time.
func (s *Store) Default() Instance {
	return s.instances[s.def]
}
