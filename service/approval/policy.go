package approval

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/scriptgate/scriptgate/model"
)

// Policy describes how one customer+tool combination is gated.
//
//   - AutoApprove: approve without human interaction.
//   - RequiresApproval: park the request for a human decision. When false
//     (and AutoApprove is false) the tool is explicitly denied.
//   - RiskThreshold: auto-approval only holds up to this risk level; a
//     request whose risk exceeds it falls back to human approval.
type Policy struct {
	AutoApprove      bool       `json:"autoApprove" yaml:"autoApprove"`
	RequiresApproval bool       `json:"requiresApproval" yaml:"requiresApproval"`
	RiskThreshold    model.Risk `json:"riskThreshold,omitempty" yaml:"riskThreshold,omitempty"`
}

// PolicyProvider loads the policy catalog of one customer. The engine loads
// per customer on first use and caches the result until RefreshPolicies.
type PolicyProvider interface {
	LoadPolicies(ctx context.Context, customerID string) (map[string]*Policy, error)
}

// StaticPolicies is a PolicyProvider over a fixed in-memory catalog, keyed by
// customer id then tool name.
type StaticPolicies map[string]map[string]*Policy

// LoadPolicies implements PolicyProvider.
func (s StaticPolicies) LoadPolicies(_ context.Context, customerID string) (map[string]*Policy, error) {
	return s[customerID], nil
}

// catalogDocument is the serialised shape of a policy catalog.
type catalogDocument struct {
	Customers map[string]map[string]*Policy `yaml:"customers" json:"customers"`
}

// LoadCatalog reads a YAML policy catalog from the given URL (file, s3, gs –
// anything afs understands) and returns a static provider over it.
func LoadCatalog(ctx context.Context, fs afs.Service, URL string) (StaticPolicies, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("approval: failed to load policy catalog from %s: %w", URL, err)
	}
	document := &catalogDocument{}
	if err := yaml.Unmarshal(data, document); err != nil {
		return nil, fmt.Errorf("approval: invalid policy catalog %s: %w", URL, err)
	}
	return StaticPolicies(document.Customers), nil
}

// AutoApproves reports whether the policy auto-approves a request at the
// given risk level. Auto-approval only holds up to the policy's threshold;
// riskier requests fall back to human approval.
func (p *Policy) AutoApproves(risk model.Risk) bool {
	return p.AutoApprove && !exceedsThreshold(risk, p.RiskThreshold)
}

var riskRank = map[model.Risk]int{
	model.RiskLow:    0,
	model.RiskMedium: 1,
	model.RiskHigh:   2,
}

// exceedsThreshold reports whether risk is strictly above threshold. An empty
// threshold means "low only".
func exceedsThreshold(risk, threshold model.Risk) bool {
	if risk == "" {
		return false
	}
	if threshold == "" {
		threshold = model.RiskLow
	}
	return riskRank[risk] > riskRank[threshold]
}
