package gateway

import (
	"context"
	"fmt"
	"sync"
)

// InMemory is a Gateway that records calls instead of delivering them. It
// backs local development when no GATEWAY_URL is configured, and tests.
type InMemory struct {
	mu sync.Mutex

	DirectMessages map[string][]string // userID -> contents
	ThreadPosts    map[string][]string // threadID -> contents
	Groups         map[string]GroupSpec
	Assignments    map[string][]string // userID -> groupIDs
	Removed        []string            // userIDs stripped of grants
	Kicked         []string
	Banned         []string

	// RefuseDMs makes SendDirectMessage report Undeliverable.
	RefuseDMs bool

	threadSeq int
	groupSeq  int
}

func NewInMemory() *InMemory {
	return &InMemory{
		DirectMessages: make(map[string][]string),
		ThreadPosts:    make(map[string][]string),
		Groups:         make(map[string]GroupSpec),
		Assignments:    make(map[string][]string),
	}
}

func (g *InMemory) SendDirectMessage(_ context.Context, userID, content string) (DeliveryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefuseDMs {
		return DeliveryResult{Delivered: false, Reason: "recipient unavailable"}, nil
	}
	g.DirectMessages[userID] = append(g.DirectMessages[userID], content)
	return DeliveryResult{Delivered: true}, nil
}

func (g *InMemory) PostToThread(_ context.Context, threadID, content string) (DeliveryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ThreadPosts[threadID] = append(g.ThreadPosts[threadID], content)
	return DeliveryResult{Delivered: true}, nil
}

func (g *InMemory) CreateThread(_ context.Context, tenantID, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threadSeq++
	return fmt.Sprintf("%s-thread-%d", tenantID, g.threadSeq), nil
}

func (g *InMemory) CreatePermissionGroup(_ context.Context, tenantID string, spec GroupSpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, existing := range g.Groups {
		if existing.Name == spec.Name {
			return id, nil
		}
	}
	g.groupSeq++
	id := fmt.Sprintf("%s-group-%d", tenantID, g.groupSeq)
	g.Groups[id] = spec
	return id, nil
}

func (g *InMemory) AssignPermissionGroup(_ context.Context, userID, groupID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Assignments[userID] = append(g.Assignments[userID], groupID)
	return nil
}

func (g *InMemory) RemovePermissionGroups(_ context.Context, _, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Removed = append(g.Removed, userID)
	return nil
}

func (g *InMemory) KickMember(_ context.Context, _, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Kicked = append(g.Kicked, userID)
	return nil
}

func (g *InMemory) BanMember(_ context.Context, _, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Banned = append(g.Banned, userID)
	return nil
}
