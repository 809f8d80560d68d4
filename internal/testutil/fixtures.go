package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/storage"
)

// NewUser creates a user with the given username and returns it with its assigned id.
func NewUser(t testing.TB, users storage.Users, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, DisplayName: username, CreatedAt: time.Now()}
	require.NoError(t, users.CreateUser(context.Background(), u))
	return u
}

// Befriend writes the contact pair directly, bypassing friend requests.
func Befriend(t testing.TB, contacts storage.Contacts, a, b int64) {
	t.Helper()
	require.NoError(t, contacts.AddContactPair(context.Background(), a, b, time.Now()))
}

// Notification is one recorded Notify call.
type Notification struct {
	UserID int64
	Title  string
	Body   string
	Data   map[string]string
}

// Notifier records push notifications. It implements push.Notifier.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *Notifier) Notify(_ context.Context, userID int64, title, body string, data map[string]string) {
	n.mu.Lock()
	n.sent = append(n.sent, Notification{UserID: userID, Title: title, Body: body, Data: data})
	n.mu.Unlock()
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
