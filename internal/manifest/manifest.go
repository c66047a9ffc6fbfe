// Package manifest reads workload manifests: the channels to create and the
// tasks to register, with their kinds, orders, and dependencies.
package manifest

import (
	"errors"
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
)

var (
	ErrUnknownKind       = errors.New("unknown task kind")
	ErrDuplicateName     = errors.New("duplicate task name")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidField      = errors.New("invalid field")
)

// Manifest mirrors a workload file.
type Manifest struct {
	Channels []string   `yaml:"channels"`
	Tasks    []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes one task. Which fields apply depends on Kind.
type TaskSpec struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Order     string   `yaml:"order"`      // band name, "high+3", or an integer
	Thread    bool     `yaml:"thread"`     // run on a dedicated worker
	DependsOn []string `yaml:"depends_on"` // task names

	Channel  string   `yaml:"channel"`  // emit, cron, watch
	Channels []string `yaml:"channels"` // log
	Priority string   `yaml:"priority"` // emit, cron, watch
	Message  string   `yaml:"message"`  // emit, cron: message kind

	Every    int    `yaml:"every"`    // emit: updates between messages
	Schedule string `yaml:"schedule"` // cron
	Path     string `yaml:"path"`     // watch
	Ticks    int    `yaml:"ticks"`    // countdown
}

// Parse decodes a manifest without validating it.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Load reads and decodes a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Task returns the spec with the given name.
func (m *Manifest) Task(name string) (TaskSpec, bool) {
	for _, t := range m.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskSpec{}, false
}
