package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FlagLevels are the reputation flag levels a policy can key actions off,
// least to most severe.
var FlagLevels = []string{"low", "medium", "high", "critical"}

// Actions are the valid auto-action values, least to most severe.
var Actions = []string{"none", "alert", "quarantine", "kick", "ban"}

type RateLimitPolicy struct {
	MaxPerWindow  int `json:"max_per_window"`
	WindowSeconds int `json:"window_seconds"`
}

// Policy is the per-tenant configuration. Every field is validated at load
// time; a tenant with an invalid policy fails startup rather than producing
// silent defaults deep in the voting or action logic.
type Policy struct {
	TenantID                    string            `json:"tenant_id"`
	TenantName                  string            `json:"tenant_name"`
	QuorumThresholdPct          int               `json:"quorum_threshold_pct"`
	ValidationTimeoutHours      int               `json:"validation_timeout_hours"`
	RateLimit                   RateLimitPolicy   `json:"rate_limit"`
	AutoActions                 map[string]string `json:"auto_actions"`
	MinValidationsForAutoAction int               `json:"min_validations_for_auto_action"`
	RequireManualReviewForBan   bool              `json:"require_manual_review_for_ban"`
	QuarantineStripsGrants      bool              `json:"quarantine_strips_grants"`
	OptOutKeyword               string            `json:"opt_out_keyword"`
	EvidenceTTLHours            int               `json:"evidence_ttl_hours"`
}

type PoliciesFile struct {
	Tenants []Policy `json:"tenants"`
}

type Registry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]*Policy)}
}

func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant policies: %w", err)
	}

	var file PoliciesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tenant policies: %w", err)
	}

	registry := NewRegistry()
	for i := range file.Tenants {
		if err := registry.Register(&file.Tenants[i]); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register validates and stores a tenant policy. Zero-value optional fields
// receive documented defaults; out-of-range values are rejected.
func (r *Registry) Register(p *Policy) error {
	if err := validate(p); err != nil {
		return fmt.Errorf("tenant %q: %w", p.TenantID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.TenantID] = p
	return nil
}

func validate(p *Policy) error {
	if p.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if p.QuorumThresholdPct == 0 {
		p.QuorumThresholdPct = 80
	}
	if p.QuorumThresholdPct < 1 || p.QuorumThresholdPct > 100 {
		return fmt.Errorf("quorum_threshold_pct must be in [1,100], got %d", p.QuorumThresholdPct)
	}
	if p.ValidationTimeoutHours == 0 {
		p.ValidationTimeoutHours = 48
	}
	if p.ValidationTimeoutHours < 1 {
		return fmt.Errorf("validation_timeout_hours must be positive, got %d", p.ValidationTimeoutHours)
	}
	if p.RateLimit.MaxPerWindow == 0 {
		p.RateLimit.MaxPerWindow = 3
	}
	if p.RateLimit.WindowSeconds == 0 {
		p.RateLimit.WindowSeconds = 3600
	}
	if p.RateLimit.MaxPerWindow < 1 || p.RateLimit.WindowSeconds < 1 {
		return fmt.Errorf("rate_limit values must be positive")
	}
	if p.AutoActions == nil {
		p.AutoActions = map[string]string{}
	}
	for level, action := range p.AutoActions {
		if !contains(FlagLevels, level) {
			return fmt.Errorf("auto_actions: unknown flag level %q", level)
		}
		if !contains(Actions, action) {
			return fmt.Errorf("auto_actions[%s]: unknown action %q", level, action)
		}
	}
	for _, level := range FlagLevels {
		if _, ok := p.AutoActions[level]; !ok {
			p.AutoActions[level] = "none"
		}
	}
	if p.MinValidationsForAutoAction == 0 {
		p.MinValidationsForAutoAction = 1
	}
	if p.MinValidationsForAutoAction < 1 {
		return fmt.Errorf("min_validations_for_auto_action must be positive")
	}
	if p.OptOutKeyword == "" {
		p.OptOutKeyword = "!optout"
	}
	if p.EvidenceTTLHours == 0 {
		p.EvidenceTTLHours = 24
	}
	if p.EvidenceTTLHours < 1 {
		return fmt.Errorf("evidence_ttl_hours must be positive")
	}
	return nil
}

func (r *Registry) Get(tenantID string) *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[tenantID]
}

func (r *Registry) Exists(tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.policies[tenantID]
	return ok
}

func (r *Registry) All() []*Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Policy, 0, len(r.policies))
	for _, p := range r.policies {
		result = append(result, p)
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
