package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a decoded wire frame as exchanged with the coordinator.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSClient is a websocket test client for integration testing.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials the given websocket URL and returns a test client.
//
// Precondition: url must be a valid "ws://host:port/path" string with a
// listening server. The auth token goes in the query string.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// SendEvent marshals data and writes an event frame to the server.
//
// Postcondition: The frame is written, or the test fails.
func (c *WSClient) SendEvent(event string, data any) {
	c.t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshaling %s payload: %v", event, err)
	}
	frame := Frame{Event: event, Data: payload}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(frame); err != nil {
		c.t.Fatalf("sending %s: %v", event, err)
	}
}

// ReadEvent reads frames until one with the given event name arrives or the
// timeout elapses. Frames for other events are discarded.
//
// Precondition: event must be non-empty.
// Postcondition: Returns the matching frame, or fails on timeout.
func (c *WSClient) ReadEvent(event string, timeout time.Duration) Frame {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.t.Fatalf("reading until %q: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

// ReadInto reads frames until the named event arrives, then decodes its
// payload into out.
func (c *WSClient) ReadInto(event string, timeout time.Duration, out any) {
	c.t.Helper()
	frame := c.ReadEvent(event, timeout)
	if err := json.Unmarshal(frame.Data, out); err != nil {
		c.t.Fatalf("decoding %s payload: %v", event, err)
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
