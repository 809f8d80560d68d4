package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDisabledIsNoop(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	require.NoError(t, c.Subscribe(context.Background(), 1, Subscription{}))
	require.NoError(t, c.Unsubscribe(context.Background(), 1, "e"))
	c.Notify(context.Background(), 1, "t", "b", nil)
}

func TestClientNotifyPostsJSON(t *testing.T) {
	got := make(chan NotifyRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/notify", r.URL.Path)
		var req NotifyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got <- req
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	c.Notify(context.Background(), 42, "alice", "hi", map[string]string{"messageId": "7"})

	req := <-got
	assert.Equal(t, int64(42), req.UserID)
	assert.Equal(t, "alice", req.Title)
	assert.Equal(t, "7", req.Data["messageId"])
}

func TestClientSubscribeReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	var sub Subscription
	sub.Endpoint = "https://push.example/abc"
	err := NewClient(srv.URL).Subscribe(context.Background(), 1, sub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestEnsureVAPIDKeysPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vapid.json")

	first, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	require.NotEmpty(t, first.PublicKey)
	require.NotEmpty(t, first.PrivateKey)

	second, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSubscriptionValid(t *testing.T) {
	var sub Subscription
	assert.False(t, sub.Valid())
	sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth = "e", "p", "a"
	assert.True(t, sub.Valid())
}

func TestResolveVAPIDKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vapid.json")
	generated, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	require.NoError(t, generated.Validate())

	keys, err := ResolveVAPIDKeys(generated.PublicKey, generated.PrivateKey, "")
	require.NoError(t, err)
	assert.Equal(t, generated, keys)

	_, err = ResolveVAPIDKeys("short", generated.PrivateKey, path)
	assert.ErrorIs(t, err, ErrInvalidVAPIDKeys)
	_, err = ResolveVAPIDKeys(generated.PublicKey, "", path)
	assert.ErrorIs(t, err, ErrInvalidVAPIDKeys)

	keys, err = ResolveVAPIDKeys("", "", path)
	require.NoError(t, err)
	assert.Equal(t, generated, keys)
}

func TestEnsureVAPIDKeysReplacesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vapid.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"public_key":"x","private_key":"y"}`), 0o600))

	keys, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	require.NoError(t, keys.Validate())

	reloaded, err := loadVAPIDKeys(path)
	require.NoError(t, err)
	assert.Equal(t, keys, reloaded)
}
