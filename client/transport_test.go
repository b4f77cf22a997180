package client

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"consult-service/internal/models"
)

var errConnClosed = errors.New("connection closed")

// fakeConn is an in-memory transport connection for tests.
type fakeConn struct {
	in chan models.Event

	mu       sync.Mutex
	writes   []models.Event
	writeErr error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan models.Event, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadEvent() (models.Event, error) {
	select {
	case event := <-c.in:
		return event, nil
	case <-c.closed:
		return models.Event{}, errConnClosed
	}
}

func (c *fakeConn) WriteEvent(event models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, event)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(event models.Event) {
	c.in <- event
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) sentEvents(eventType string) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, e := range c.writes {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testMessageEvent(roomID, text string) models.Event {
	return models.Event{
		Type:   models.EventSendMessage,
		RoomID: roomID,
		Text:   text,
	}
}

// fakeDialer fails the first `failures` dials, then hands out fakeConns.
type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	failures int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failures {
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

// gatedDialer holds every dial until the gate opens, so tests can pile
// up concurrent callers against one in-flight handshake.
type gatedDialer struct {
	fakeDialer
	gate chan struct{}
}

func (d *gatedDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	<-d.gate
	return d.fakeDialer.Dial(ctx, url, header)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
