// Package gateway is the outbound port to the chat platform. The core only
// calls these operations abstractly; delivery, retries, and rendering belong
// to the platform bridge behind the webhook.
package gateway

import "context"

// DeliveryResult is the outcome of a message send. A refusal by the platform
// (closed DMs, archived thread) is a normal outcome carried in the result,
// not an error; errors are reserved for transport failures.
type DeliveryResult struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

// GroupSpec describes a permission group to create. Deny-by-default: the
// listed capabilities are the only ones granted.
type GroupSpec struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

type Gateway interface {
	SendDirectMessage(ctx context.Context, userID, content string) (DeliveryResult, error)
	PostToThread(ctx context.Context, threadID, content string) (DeliveryResult, error)
	CreateThread(ctx context.Context, tenantID, title string) (string, error)
	CreatePermissionGroup(ctx context.Context, tenantID string, spec GroupSpec) (string, error)
	AssignPermissionGroup(ctx context.Context, userID, groupID string) error
	RemovePermissionGroups(ctx context.Context, tenantID, userID string) error
	KickMember(ctx context.Context, tenantID, userID string) error
	BanMember(ctx context.Context, tenantID, userID string) error
}
