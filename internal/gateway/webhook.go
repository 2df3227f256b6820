package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook is the production Gateway: it POSTs JSON commands to the chat
// platform bridge. Every call is bounded by the client timeout.
type Webhook struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewWebhook(baseURL, token string, timeout time.Duration) *Webhook {
	return &Webhook{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) SendDirectMessage(ctx context.Context, userID, content string) (DeliveryResult, error) {
	return w.deliver(ctx, "/v1/messages/direct", map[string]string{
		"user_id": userID,
		"content": content,
	})
}

func (w *Webhook) PostToThread(ctx context.Context, threadID, content string) (DeliveryResult, error) {
	return w.deliver(ctx, "/v1/messages/thread", map[string]string{
		"thread_id": threadID,
		"content":   content,
	})
}

func (w *Webhook) CreateThread(ctx context.Context, tenantID, title string) (string, error) {
	var resp struct {
		ThreadID string `json:"thread_id"`
	}
	err := w.post(ctx, "/v1/threads", map[string]string{
		"tenant_id": tenantID,
		"title":     title,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ThreadID, nil
}

func (w *Webhook) CreatePermissionGroup(ctx context.Context, tenantID string, spec GroupSpec) (string, error) {
	var resp struct {
		GroupID string `json:"group_id"`
	}
	err := w.post(ctx, "/v1/groups", map[string]interface{}{
		"tenant_id":    tenantID,
		"name":         spec.Name,
		"capabilities": spec.Capabilities,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.GroupID, nil
}

func (w *Webhook) AssignPermissionGroup(ctx context.Context, userID, groupID string) error {
	return w.post(ctx, "/v1/groups/assign", map[string]string{
		"user_id":  userID,
		"group_id": groupID,
	}, nil)
}

func (w *Webhook) RemovePermissionGroups(ctx context.Context, tenantID, userID string) error {
	return w.post(ctx, "/v1/groups/remove-all", map[string]string{
		"tenant_id": tenantID,
		"user_id":   userID,
	}, nil)
}

func (w *Webhook) KickMember(ctx context.Context, tenantID, userID string) error {
	return w.post(ctx, "/v1/members/kick", map[string]string{
		"tenant_id": tenantID,
		"user_id":   userID,
	}, nil)
}

func (w *Webhook) BanMember(ctx context.Context, tenantID, userID string) error {
	return w.post(ctx, "/v1/members/ban", map[string]string{
		"tenant_id": tenantID,
		"user_id":   userID,
	}, nil)
}

// deliver treats 403 as a refusal (Undeliverable), not a transport error.
func (w *Webhook) deliver(ctx context.Context, path string, body interface{}) (DeliveryResult, error) {
	status, err := w.do(ctx, path, body, nil)
	if err != nil {
		return DeliveryResult{}, err
	}
	if status == http.StatusForbidden {
		return DeliveryResult{Delivered: false, Reason: "recipient unavailable"}, nil
	}
	if status < 200 || status >= 300 {
		return DeliveryResult{}, fmt.Errorf("gateway returned status %d", status)
	}
	return DeliveryResult{Delivered: true}, nil
}

func (w *Webhook) post(ctx context.Context, path string, body, out interface{}) error {
	status, err := w.do(ctx, path, body, out)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("gateway returned status %d", status)
	}
	return nil
}

func (w *Webhook) do(ctx context.Context, path string, body, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
