package model

import (
	"encoding/json"
	"sort"
)

// Default values applied by Manifest.Normalize.
const (
	DefaultInterpreter      = "bash"
	DefaultTimeoutSec       = 60
	DefaultWorkingDirectory = "/tmp"
)

// Manifest declares how a script should run on the device. It travels inside
// the signed package, so any change after packaging invalidates the checksum.
type Manifest struct {
	Interpreter          string            `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	TimeoutSec           int               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	WorkingDirectory     string            `json:"workingDirectory,omitempty" yaml:"workingDirectory,omitempty"`
	Env                  map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	RequiredCapabilities []string          `json:"requiredCapabilities,omitempty" yaml:"requiredCapabilities,omitempty"`
	RollbackScript       string            `json:"rollbackScript,omitempty" yaml:"rollbackScript,omitempty"`
	MaxRetries           int               `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
}

// Normalize applies canonical defaults in place and returns the manifest.
func (m *Manifest) Normalize() *Manifest {
	if m.Interpreter == "" {
		m.Interpreter = DefaultInterpreter
	}
	if m.TimeoutSec <= 0 {
		m.TimeoutSec = DefaultTimeoutSec
	}
	if m.WorkingDirectory == "" {
		m.WorkingDirectory = DefaultWorkingDirectory
	}
	if m.MaxRetries < 0 {
		m.MaxRetries = 0
	}
	return m
}

// Canonical returns a stable byte representation used for checksums. Map keys
// and capability lists are ordered so that the same manifest always hashes to
// the same value.
func (m *Manifest) Canonical() ([]byte, error) {
	clone := *m
	if len(clone.RequiredCapabilities) > 0 {
		caps := append([]string(nil), clone.RequiredCapabilities...)
		sort.Strings(caps)
		clone.RequiredCapabilities = caps
	}
	// encoding/json already emits map keys in sorted order.
	return json.Marshal(&clone)
}
