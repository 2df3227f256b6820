package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_SendDirectMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := NewWebhook(srv.URL, "secret-token", time.Second)
	result, err := gw.SendDirectMessage(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	assert.Equal(t, "/v1/messages/direct", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, map[string]string{"user_id": "user-1", "content": "hello"}, gotBody)
}

func TestWebhook_ForbiddenMeansUndeliverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	gw := NewWebhook(srv.URL, "", time.Second)
	result, err := gw.SendDirectMessage(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.False(t, result.Delivered)
	assert.NotEmpty(t, result.Reason)
}

func TestWebhook_ServerErrorIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := NewWebhook(srv.URL, "", time.Second)
	_, err := gw.PostToThread(context.Background(), "thread-1", "hello")
	assert.Error(t, err)

	err = gw.KickMember(context.Background(), "t1", "user-1")
	assert.Error(t, err)
}

func TestWebhook_CreateThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/threads", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"thread_id": "thread-42"})
	}))
	defer srv.Close()

	gw := NewWebhook(srv.URL, "", time.Second)
	threadID, err := gw.CreateThread(context.Background(), "t1", "Report abc")
	require.NoError(t, err)
	assert.Equal(t, "thread-42", threadID)
}

func TestWebhook_CreatePermissionGroup(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"group_id": "group-7"})
	}))
	defer srv.Close()

	gw := NewWebhook(srv.URL, "", time.Second)
	groupID, err := gw.CreatePermissionGroup(context.Background(), "t1", GroupSpec{
		Name:         "restricted",
		Capabilities: []string{"read_messages"},
	})
	require.NoError(t, err)
	assert.Equal(t, "group-7", groupID)
	assert.Equal(t, "restricted", gotBody["name"])
}
