package feed

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   []*nats.Msg
	err    error
	closed bool
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func newTestPublisher() (*Publisher, *fakeConn) {
	conn := &fakeConn{}
	cfg := DefaultConfig()
	cfg.ClientID = "desk-1"
	return NewPublisher(conn, cfg), conn
}

func TestPublisher_OnView(t *testing.T) {
	p, conn := newTestPublisher()

	p.OnView(reconcile.View{Status: "Your turn (P1)", Version: 4})

	require.Len(t, conn.msgs, 1)
	msg := conn.msgs[0]
	assert.Equal(t, "deskrogue.client.view", msg.Subject)
	assert.Equal(t, "view", msg.Header.Get("Event-Type"))
	assert.Equal(t, "desk-1", msg.Header.Get("Client-ID"))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, "view", env.EventType)
	assert.Equal(t, "desk-1", env.ClientID)
	assert.Equal(t, msg.Header.Get("Event-ID"), env.EventID)
	assert.NotEmpty(t, env.EventID)

	var v reconcile.View
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	assert.Equal(t, int64(4), v.Version)
}

func TestPublisher_OnNotice(t *testing.T) {
	p, conn := newTestPublisher()

	p.OnNotice(reconcile.Notice{Kind: reconcile.NoticeCommandFailed, Code: "HTTP 502"})

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "deskrogue.client.notice", conn.msgs[0].Subject)
}

func TestPublisher_PublishError(t *testing.T) {
	p, conn := newTestPublisher()
	conn.err = nats.ErrConnectionClosed

	err := p.Publish(EventTypeView, reconcile.View{})
	assert.True(t, errors.Is(err, nats.ErrConnectionClosed))

	// observers swallow the error
	p.OnView(reconcile.View{})

	p.Close()
	assert.True(t, conn.closed)
}
