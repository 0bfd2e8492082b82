package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id   string
	err  error
	mu   sync.Mutex
	sent []string
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) WriteText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestRegisterAndDeregister(t *testing.T) {
	reg := New()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}

	reg.Register(a)
	reg.Register(b)
	require.Equal(t, 2, reg.Count())

	reg.Deregister(a)
	assert.Equal(t, 1, reg.Count())

	// Removing an absent connection must not panic or change membership.
	reg.Deregister(a)
	assert.Equal(t, 1, reg.Count())
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	reg := New()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	reg.Register(a)
	reg.Register(b)

	require.NoError(t, reg.Broadcast("hello"))

	assert.Equal(t, []string{"hello"}, a.sent)
	assert.Equal(t, []string{"hello"}, b.sent)
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	reg := New()
	broken := &fakeConn{id: "broken", err: errors.New("closed")}
	healthy := &fakeConn{id: "healthy"}
	reg.Register(broken)
	reg.Register(healthy)

	err := reg.Broadcast("notice")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"notice"}, healthy.sent)
}

func TestBroadcastEmptyRegistry(t *testing.T) {
	assert.NoError(t, New().Broadcast("nobody home"))
}
