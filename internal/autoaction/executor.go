package autoaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/gateway"
	"github.com/crossguard/crossguard/internal/reputation"
	"github.com/crossguard/crossguard/internal/tenant"
)

// Actions the executor can take, least to most severe.
const (
	ActionNone       = "none"
	ActionAlert      = "alert"
	ActionQuarantine = "quarantine"
	ActionKick       = "kick"
	ActionBan        = "ban"
)

const quarantineGroupName = "crossguard-quarantine"

// Outcome describes the action actually taken, which may be a downgrade of
// the configured action.
type Outcome struct {
	Action               string `json:"action"`
	FlagLevel            string `json:"flag_level,omitempty"`
	ValidatedCount       int    `json:"validated_count"`
	ManualReviewRequired bool   `json:"manual_review_required,omitempty"`
	BelowThreshold       bool   `json:"below_threshold,omitempty"`
}

// Executor applies a tenant's configured protective action for a target's
// reputation state. All taken actions are audited.
type Executor struct {
	agg      *reputation.Aggregator
	registry *tenant.Registry
	gw       gateway.Gateway
	trail    *audit.Trail
}

func NewExecutor(agg *reputation.Aggregator, registry *tenant.Registry, gw gateway.Gateway, trail *audit.Trail) *Executor {
	return &Executor{agg: agg, registry: registry, gw: gw, trail: trail}
}

// Evaluate resolves and executes the tenant's policy for the target.
func (e *Executor) Evaluate(ctx context.Context, targetIdentifier, tenantID, moderatorID, moderatorName string) (*Outcome, error) {
	policy := e.registry.Get(tenantID)
	if policy == nil {
		return nil, fmt.Errorf("unknown tenant %q", tenantID)
	}

	record, err := e.agg.Fetch(targetIdentifier)
	if errors.Is(err, reputation.ErrNotFound) {
		return &Outcome{Action: ActionNone}, nil
	}
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		FlagLevel:      record.FlagLevel,
		ValidatedCount: record.ValidatedCount,
	}

	switch {
	case record.ValidatedCount < policy.MinValidationsForAutoAction:
		// Below the validation floor the executor never escalates past
		// alert, whatever the mapping says.
		outcome.Action = ActionAlert
		outcome.BelowThreshold = true
	default:
		outcome.Action = policy.AutoActions[record.FlagLevel]
		if outcome.Action == ActionBan && policy.RequireManualReviewForBan {
			outcome.Action = ActionAlert
			outcome.ManualReviewRequired = true
		}
	}

	if err := e.execute(ctx, outcome, targetIdentifier, tenantID, policy, moderatorID); err != nil {
		return nil, err
	}

	if outcome.Action != ActionNone {
		details := map[string]string{
			"action":          outcome.Action,
			"target":          targetIdentifier,
			"flag_level":      record.FlagLevel,
			"validated_count": strconv.Itoa(record.ValidatedCount),
		}
		if outcome.ManualReviewRequired {
			details["manual_review_required"] = "true"
		}
		if err := e.trail.Append(tenantID, audit.ActionAutoActionTaken, moderatorID, moderatorName, details, ""); err != nil {
			slog.Error("failed to audit auto-action", "tenant_id", tenantID, "error", err)
		}
	}
	return outcome, nil
}

func (e *Executor) execute(ctx context.Context, outcome *Outcome, target, tenantID string, policy *tenant.Policy, moderatorID string) error {
	switch outcome.Action {
	case ActionNone:
		return nil

	case ActionAlert:
		msg := fmt.Sprintf("Crossguard alert: %q is flagged %s with %d validated reports.",
			target, outcome.FlagLevel, outcome.ValidatedCount)
		if outcome.ManualReviewRequired {
			msg += " Configured ban requires manual review."
		}
		delivery, err := e.gw.SendDirectMessage(ctx, moderatorID, msg)
		if err != nil {
			return fmt.Errorf("alert delivery failed: %w", err)
		}
		if !delivery.Delivered {
			slog.Warn("alert undeliverable", "tenant_id", tenantID, "reason", delivery.Reason)
		}
		return nil

	case ActionQuarantine:
		groupID, err := e.gw.CreatePermissionGroup(ctx, tenantID, gateway.GroupSpec{
			Name:         quarantineGroupName,
			Capabilities: []string{"read_messages"},
		})
		if err != nil {
			return fmt.Errorf("failed to create quarantine group: %w", err)
		}
		if err := e.gw.AssignPermissionGroup(ctx, target, groupID); err != nil {
			return fmt.Errorf("failed to assign quarantine group: %w", err)
		}
		if policy.QuarantineStripsGrants {
			// Destructive and policy-gated: remove every other grant so
			// the deny-by-default group is all that remains.
			if err := e.gw.RemovePermissionGroups(ctx, tenantID, target); err != nil {
				return fmt.Errorf("failed to strip permission grants: %w", err)
			}
		}
		return nil

	case ActionKick:
		return e.gw.KickMember(ctx, tenantID, target)

	case ActionBan:
		return e.gw.BanMember(ctx, tenantID, target)

	default:
		return fmt.Errorf("unknown action %q", outcome.Action)
	}
}
