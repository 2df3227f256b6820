// Package relay implements the time-bounded anonymous evidence channel: a
// TTL mapping from submitter pseudonym to report thread, forwarding later
// follow-up content with all sender-identifying metadata stripped.
package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/gateway"
	"github.com/crossguard/crossguard/internal/tenant"
	gocache "github.com/patrickmn/go-cache"
)

// Status of a relay attempt.
type Status string

const (
	StatusDelivered       Status = "delivered"
	StatusNoActiveMapping Status = "no_active_mapping"
	StatusOptedOut        Status = "opted_out"
	StatusUndeliverable   Status = "undeliverable"
)

// Result is the typed outcome of Relay. Refusals and missing mappings are
// results, not errors.
type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Mapping links a submitter pseudonym to an open report thread. The
// pseudonym is the keyed submitter fingerprint, never a raw identifier.
type Mapping struct {
	ReportToken string
	ThreadID    string
	TenantID    string
}

// Relay holds the active mappings in a TTL cache. Expiry is enforced by the
// cache janitor on a coarse interval; content arriving between logical
// expiry and the next sweep may still be relayed, which is accepted.
type Relay struct {
	cache    *gocache.Cache
	gw       gateway.Gateway
	registry *tenant.Registry
	trail    *audit.Trail
}

func New(gw gateway.Gateway, registry *tenant.Registry, trail *audit.Trail, sweepInterval time.Duration) *Relay {
	return &Relay{
		cache:    gocache.New(24*time.Hour, sweepInterval),
		gw:       gw,
		registry: registry,
		trail:    trail,
	}
}

// RegisterMapping activates a mapping for the pseudonym. A submitter has at
// most one active mapping; a new report replaces the previous one.
func (r *Relay) RegisterMapping(pseudonym, reportToken, threadID, tenantID string, ttl time.Duration) {
	r.cache.Set(pseudonym, Mapping{
		ReportToken: reportToken,
		ThreadID:    threadID,
		TenantID:    tenantID,
	}, ttl)
}

// Relay forwards follow-up content into the report thread. The tenant's
// opt-out keyword removes the mapping instead of being relayed as evidence.
func (r *Relay) Relay(ctx context.Context, pseudonym, content string) (Result, error) {
	raw, ok := r.cache.Get(pseudonym)
	if !ok {
		return Result{Status: StatusNoActiveMapping}, nil
	}
	mapping := raw.(Mapping)

	if policy := r.registry.Get(mapping.TenantID); policy != nil {
		if strings.EqualFold(strings.TrimSpace(content), policy.OptOutKeyword) {
			r.cache.Delete(pseudonym)
			return Result{Status: StatusOptedOut}, nil
		}
	}

	// Only the content crosses this boundary; no sender metadata is attached.
	delivery, err := r.gw.PostToThread(ctx, mapping.ThreadID, "Anonymous follow-up evidence:\n"+content)
	if err != nil {
		return Result{}, err
	}
	if !delivery.Delivered {
		return Result{Status: StatusUndeliverable, Reason: delivery.Reason}, nil
	}
	return Result{Status: StatusDelivered}, nil
}

// OptOut removes the submitter's mapping immediately.
func (r *Relay) OptOut(pseudonym string) {
	r.cache.Delete(pseudonym)
}

// ForceExpire terminates the mapping for a report early. Moderator-initiated,
// audited, and irreversible. Returns false if no mapping was active, which
// is a normal outcome when the sweep got there first.
func (r *Relay) ForceExpire(reportToken, tenantID, moderatorID, moderatorName string) bool {
	found := false
	for key, item := range r.cache.Items() {
		mapping, ok := item.Object.(Mapping)
		if !ok || mapping.ReportToken != reportToken || mapping.TenantID != tenantID {
			continue
		}
		r.cache.Delete(key)
		found = true
	}

	if err := r.trail.Append(tenantID, audit.ActionRelayForceExpired, moderatorID, moderatorName,
		map[string]string{"had_active_mapping": boolString(found)}, reportToken); err != nil {
		slog.Error("failed to audit relay force-expire", "tenant_id", tenantID, "error", err)
	}
	return found
}

// ActiveCount reports the number of live mappings, for diagnostics.
func (r *Relay) ActiveCount() int {
	return r.cache.ItemCount()
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
