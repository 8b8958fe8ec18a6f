package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pokerhost/pkg/registry"
)

func openRegistry(t *testing.T) *registry.Store {
	t.Helper()
	reg, err := registry.Open(context.Background(), registry.Config{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func statusOf(t *testing.T, reg *registry.Store, host, id string) string {
	t.Helper()
	subs, err := reg.SubscribersFor(context.Background(), host)
	require.NoError(t, err)
	for _, s := range subs {
		if s.Identity == id {
			return s.Status
		}
	}
	return ""
}

func TestCheckHost(t *testing.T) {
	ctx := context.Background()
	reg := openRegistry(t)

	assert.ErrorIs(t, CheckHost(ctx, reg, "host"), ErrUnknownHost)
	require.NoError(t, reg.RegisterHost(ctx, registry.Host{Identity: "host", Name: "table"}))
	assert.NoError(t, CheckHost(ctx, reg, "host"))
}

func TestJoinHost(t *testing.T) {
	ctx := context.Background()
	reg := openRegistry(t)
	req := func(id, host string) registry.SubscribeRequest {
		return registry.SubscribeRequest{Subscriber: id, Provider: host, Endpoint: "http://" + id + "/fxn"}
	}

	_, err := JoinHost(ctx, reg, req("alice", "open"), false)
	assert.ErrorIs(t, err, ErrUnknownHost)

	require.NoError(t, reg.RegisterHost(ctx, registry.Host{Identity: "open"}))
	require.NoError(t, reg.RegisterHost(ctx, registry.Host{Identity: "closed", RestrictSubscriptions: true}))

	active, err := JoinHost(ctx, reg, req("alice", "open"), false)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, registry.StatusActive, statusOf(t, reg, "open", "alice"))

	active, err = JoinHost(ctx, reg, req("bob", "open"), true)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, registry.StatusPending, statusOf(t, reg, "open", "bob"))

	// A restricted host turns a direct subscription into a request.
	active, err = JoinHost(ctx, reg, req("carol", "closed"), false)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, registry.StatusPending, statusOf(t, reg, "closed", "carol"))
}
