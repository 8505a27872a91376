package eventsvc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/tests"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []message
	err     error
	drained bool
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, message{subject: subj, data: data})
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNatsPublisher_Publish(t *testing.T) {
	conn := new(fakeConn)
	p := newNatsPublisher(conn, "SchoolHub", new(testutil.Logger))

	evt := core.NewEvent(core.EventUserRegistered, "42", "ana@x.com", "student")
	require.NoError(t, p.Publish(context.Background(), evt))

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "schoolhub.user.registered", conn.msgs[0].subject)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &got))
	assert.Equal(t, "user.registered", got["eventType"])
	assert.Equal(t, "42", got["userId"])
	assert.Equal(t, "ana@x.com", got["email"])
	assert.Equal(t, "student", got["role"])
	assert.NotEmpty(t, got["occurredAt"])

	p.Close()
	assert.True(t, conn.drained)
}

func TestNatsPublisher_Publish_errors(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := newNatsPublisher(conn, "schoolhub", new(testutil.Logger))
	evt := core.NewEvent(core.EventUserLoggedOut, "42", "", "")

	err := p.Publish(context.Background(), evt)
	assert.EqualError(t, err, "publishing user.logged_out: nats: connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, p.Publish(ctx, evt))
}

func TestNew_noop(t *testing.T) {
	p, err := New(core.NewTestConfig(), new(testutil.Logger))
	require.NoError(t, err)
	assert.Equal(t, core.NewNoopPublisher(), p)
	assert.NoError(t, p.Publish(context.Background(), core.Event{}))
}
