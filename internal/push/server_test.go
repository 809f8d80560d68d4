package push

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// newOfflineServer: Redis-клиент никуда не подключается; годится для путей, которые до Redis не доходят.
func newOfflineServer(keys *VAPIDKeys) *Server {
	subs := NewSubscriptionStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	return NewServer(subs, NewSender(subs, keys), keys, "s3cret")
}

func serve(h http.Handler, method, path, body, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_InternalOnly(t *testing.T) {
	h := newOfflineServer(nil).Routes()

	rec := serve(h, http.MethodPost, "/api/notify", `{"user_id":1}`, "203.0.113.7:5000", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// VAPID выключен: Send ничего не делает, Redis не нужен.
	rec = serve(h, http.MethodPost, "/api/notify", `{"user_id":1}`, "203.0.113.7:5000",
		map[string]string{"X-Internal-Secret": "s3cret"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(h, http.MethodPost, "/api/notify", `{"user_id":1}`, "10.0.0.5:5000", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_Validation(t *testing.T) {
	h := newOfflineServer(nil).Routes()
	const local = "127.0.0.1:4000"

	rec := serve(h, http.MethodPost, "/api/subscribe", `{`, local, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/api/subscribe", `{"user_id":5,"subscription":{"endpoint":"https://x"}}`, local, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodDelete, "/api/subscribe", `{"user_id":0,"endpoint":"https://x"}`, local, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/api/notify", `{"title":"t"}`, local, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_VAPIDPublic(t *testing.T) {
	rec := serve(newOfflineServer(nil).Routes(), http.MethodGet, "/api/vapid-public", "", "8.8.8.8:1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	keys := &VAPIDKeys{PublicKey: "pub-key", PrivateKey: "priv-key"}
	rec = serve(newOfflineServer(keys).Routes(), http.MethodGet, "/api/vapid-public", "", "8.8.8.8:1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pub-key", rec.Body.String())
}
