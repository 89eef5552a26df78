package scriptgate

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	apmemory "github.com/scriptgate/scriptgate/service/approval/memory"
	"github.com/scriptgate/scriptgate/service/dispatch"
	"github.com/scriptgate/scriptgate/service/orchestrator"
	"github.com/scriptgate/scriptgate/service/signer"
)

// Config is the serialisable top-level configuration. Durations are carried
// as integer seconds so the document stays trivially portable.
type Config struct {
	// Environment gates the signing key acquisition policy; anything other
	// than "production" may fall back to a derived dev key.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`

	// PolicyCatalogURL points at a YAML policy catalog (file, s3, gs).
	// Empty means an empty catalog: every tool is unknown and denied.
	PolicyCatalogURL string `json:"policyCatalogURL,omitempty" yaml:"policyCatalogURL,omitempty"`

	Signer signer.Config `json:"signer,omitempty" yaml:"signer,omitempty"`

	ApprovalTimeoutSec   int      `json:"approvalTimeoutSec,omitempty" yaml:"approvalTimeoutSec,omitempty"`
	DeniedTools          []string `json:"deniedTools,omitempty" yaml:"deniedTools,omitempty"`
	CancellationGraceSec int      `json:"cancellationGraceSec,omitempty" yaml:"cancellationGraceSec,omitempty"`
	ReconcileIntervalSec int      `json:"reconcileIntervalSec,omitempty" yaml:"reconcileIntervalSec,omitempty"`
	StreamMaxDurationSec int      `json:"streamMaxDurationSec,omitempty" yaml:"streamMaxDurationSec,omitempty"`
}

// DefaultConfig returns a development configuration.
func DefaultConfig() Config {
	return Config{Environment: "dev"}
}

// Validate rejects values that would silently disable safety behaviour.
func (c *Config) Validate() error {
	if c.ApprovalTimeoutSec < 0 {
		return fmt.Errorf("config: approvalTimeoutSec must not be negative")
	}
	if c.CancellationGraceSec < 0 {
		return fmt.Errorf("config: cancellationGraceSec must not be negative")
	}
	if c.ReconcileIntervalSec < 0 {
		return fmt.Errorf("config: reconcileIntervalSec must not be negative")
	}
	if c.StreamMaxDurationSec < 0 {
		return fmt.Errorf("config: streamMaxDurationSec must not be negative")
	}
	return nil
}

// LoadConfig reads a YAML configuration from the given URL.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", URL, err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: invalid document %s: %w", URL, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) approvalConfig() apmemory.Config {
	ret := apmemory.DefaultConfig()
	if c.ApprovalTimeoutSec > 0 {
		ret.DefaultTimeout = time.Duration(c.ApprovalTimeoutSec) * time.Second
	}
	ret.DeniedTools = c.DeniedTools
	return ret
}

func (c *Config) dispatchConfig() dispatch.Config {
	ret := dispatch.DefaultConfig()
	if c.CancellationGraceSec > 0 {
		ret.CancellationGrace = time.Duration(c.CancellationGraceSec) * time.Second
	}
	if c.ReconcileIntervalSec > 0 {
		ret.ReconcileInterval = time.Duration(c.ReconcileIntervalSec) * time.Second
	}
	return ret
}

func (c *Config) orchestratorConfig() orchestrator.Config {
	ret := orchestrator.DefaultConfig()
	if c.StreamMaxDurationSec > 0 {
		ret.StreamMaxDuration = time.Duration(c.StreamMaxDurationSec) * time.Second
	}
	return ret
}
