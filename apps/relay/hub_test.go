package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/chat-relay/pkg/auth"
	"github.com/threadline/chat-relay/pkg/model"
	"github.com/threadline/chat-relay/pkg/presence"
)

type fakeResolver struct {
	identities map[string]auth.Identity
	err        error
}

func (f *fakeResolver) Resolve(ctx context.Context, token string) (auth.Identity, error) {
	if f.err != nil {
		return auth.Identity{}, f.err
	}
	identity, ok := f.identities[token]
	if !ok {
		return auth.Identity{}, errors.New("unknown token")
	}
	return identity, nil
}

type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	appended []model.DirectMessage
	fail     bool
}

func (f *fakeStore) Append(ctx context.Context, senderID, recipientID int64, body, imageURL string) (model.DirectMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return model.DirectMessage{}, errors.New("store unavailable")
	}
	f.nextID++
	msg := model.DirectMessage{
		ID:              f.nextID,
		SenderUserID:    senderID,
		RecipientUserID: recipientID,
		Body:            body,
		ImageURL:        imageURL,
		CreatedAt:       time.Now().UTC(),
	}
	f.appended = append(f.appended, msg)
	return msg, nil
}

func (f *fakeStore) messages() []model.DirectMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.DirectMessage(nil), f.appended...)
}

func resolverFor(userIDs ...int64) *fakeResolver {
	identities := make(map[string]auth.Identity, len(userIDs))
	for _, id := range userIDs {
		identities[fmt.Sprintf("token-%d", id)] = auth.Identity{
			UserID:      id,
			DisplayName: fmt.Sprintf("User %d", id),
			Handle:      fmt.Sprintf("user%d", id),
		}
	}
	return &fakeResolver{identities: identities}
}

func newTestHub(resolver auth.Resolver, store MessageAppender) *Hub {
	return NewHub(presence.NewRegistry(nil), resolver, store)
}

func newTestClient(h *Hub) *Client {
	c := &Client{
		hub:   h,
		send:  make(chan []byte, 64),
		id:    uuid.NewString(),
		state: stateConnecting,
	}
	h.register(c)
	return c
}

func authFrame(token string) json.RawMessage {
	data, _ := json.Marshal(model.AuthPayload{UserID: token})
	return data
}

func connect(t *testing.T, h *Hub, userID int64) *Client {
	t.Helper()
	c := newTestClient(h)
	h.authenticate(c, authFrame(fmt.Sprintf("token-%d", userID)))
	require.Equal(t, stateActive, c.state)
	return c
}

// drain collects buffered frames for one event type, discarding the rest.
func drain(c *Client, event string) []model.Envelope {
	var out []model.Envelope
	for {
		select {
		case frame := <-c.send:
			var env model.Envelope
			if json.Unmarshal(frame, &env) == nil && env.Event == event {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func TestAuthenticate_Activates(t *testing.T) {
	h := newTestHub(resolverFor(1), &fakeStore{})
	c := connect(t, h, 1)

	assert.Equal(t, int64(1), c.userID)
	assert.Equal(t, "User 1", c.displayName)
	assert.Equal(t, "user1", c.handle)
	assert.Equal(t, []int64{1}, h.registry.OnlineUserIDs())

	updates := drain(c, model.EventPresenceUpdate)
	require.NotEmpty(t, updates)
	var p model.PresenceUpdate
	require.NoError(t, json.Unmarshal(updates[len(updates)-1].Data, &p))
	assert.Equal(t, []int64{1}, p.OnlineUserIDs)
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		resolver auth.Resolver
		data     json.RawMessage
	}{
		{"missing token", resolverFor(1), json.RawMessage(`{}`)},
		{"token not a string", resolverFor(1), json.RawMessage(`{"userId": 42}`)},
		{"resolver error", &fakeResolver{err: errors.New("identity provider down")}, authFrame("token-1")},
		{"unknown token", resolverFor(1), authFrame("token-99")},
		{"invalid derived id", &fakeResolver{identities: map[string]auth.Identity{"token-1": {UserID: 0}}}, authFrame("token-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(tt.resolver, &fakeStore{})
			c := newTestClient(h)
			h.authenticate(c, tt.data)

			assert.Equal(t, stateClosed, c.state)
			assert.Empty(t, h.registry.OnlineUserIDs())

			// Transport close of a never-Active connection leaves no trace.
			h.unregister(c)
			assert.Empty(t, h.registry.OnlineUserIDs())
		})
	}
}

func TestAuthenticate_Once(t *testing.T) {
	h := newTestHub(resolverFor(1, 2), &fakeStore{})
	c := connect(t, h, 1)

	h.authenticate(c, authFrame("token-2"))
	assert.Equal(t, int64(1), c.userID, "re-auth must not rebind the connection")
	assert.Equal(t, []int64{1}, h.registry.OnlineUserIDs())
}

func TestPresence_MultipleConnections(t *testing.T) {
	h := newTestHub(resolverFor(1), &fakeStore{})

	c1 := connect(t, h, 1)
	c2 := connect(t, h, 1)
	assert.Equal(t, []int64{1}, h.registry.OnlineUserIDs())

	h.unregister(c1)
	assert.Equal(t, []int64{1}, h.registry.OnlineUserIDs(), "user stays online while a connection remains")

	h.unregister(c2)
	assert.Empty(t, h.registry.OnlineUserIDs())
}

func TestPresence_BroadcastReachesEveryConnection(t *testing.T) {
	h := newTestHub(resolverFor(1, 2), &fakeStore{})
	c1 := connect(t, h, 1)
	unauthenticated := newTestClient(h)

	connect(t, h, 2)

	for _, c := range []*Client{c1, unauthenticated} {
		updates := drain(c, model.EventPresenceUpdate)
		require.NotEmpty(t, updates, "presence is global, not room-scoped")
		var p model.PresenceUpdate
		require.NoError(t, json.Unmarshal(updates[len(updates)-1].Data, &p))
		assert.Equal(t, []int64{1, 2}, p.OnlineUserIDs)
	}
}

func TestPresence_ConcurrentRegistration(t *testing.T) {
	const users = 30
	ids := make([]int64, users)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	h := newTestHub(resolverFor(ids...), &fakeStore{})

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			c := newTestClient(h)
			h.authenticate(c, authFrame(fmt.Sprintf("token-%d", userID)))
		}(id)
	}
	wg.Wait()

	assert.Equal(t, ids, h.registry.OnlineUserIDs(), "no registration may be lost")
}

func TestDeliverNotification_NotificationRoomOnly(t *testing.T) {
	h := newTestHub(resolverFor(1, 2), &fakeStore{})
	a1 := connect(t, h, 1)
	a2 := connect(t, h, 1)
	b := connect(t, h, 2)

	payload := json.RawMessage(`{"kind":"reply","threadId":7}`)
	h.DeliverNotification(1, payload)

	for _, c := range []*Client{a1, a2} {
		events := drain(c, model.EventNotificationNew)
		require.Len(t, events, 1)
		assert.JSONEq(t, string(payload), string(events[0].Data))
	}
	assert.Empty(t, drain(b, model.EventNotificationNew))
}
