package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/resp"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// testHarness spins up a Server with a live writer task draining the bus
// over an in-memory listener, the in-process equivalent of the scenarios
// a real client would drive over TCP.
type testHarness struct {
	srv    *Server
	ln     net.Listener
	cancel context.CancelFunc
}

func newHarness(t *testing.T, requirePass string) *testHarness {
	t.Helper()
	s := store.New()
	b := bus.New(16)
	writerConsumer := b.Subscribe()

	srv := New(s, b, requirePass, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	wt := &WriterTask{Store: s}
	go wt.Run(ctx, writerConsumer)
	go srv.Serve(ctx, ln)

	t.Cleanup(func() { cancel(); ln.Close() })
	return &testHarness{srv: srv, ln: ln, cancel: cancel}
}

func (h *testHarness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", h.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendCommand(t *testing.T, conn net.Conn, args ...string) resp.Value {
	t.Helper()
	elems := make([]resp.Value, len(args))
	for i, a := range args {
		elems[i] = resp.NewBulkString(a)
	}
	_, err := conn.Write(resp.Encode(resp.NewArray(elems)))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	buf := make([]byte, 0, 512)
	for {
		v, n, err := resp.Decode(buf)
		if err == nil {
			_ = n
			return v
		}
		chunk := make([]byte, 512)
		n2, rerr := reader.Read(chunk)
		if n2 > 0 {
			buf = append(buf, chunk[:n2]...)
		}
		require.NoError(t, rerr)
	}
}

func TestSetGetRoundTripOverConn(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	v := sendCommand(t, conn, "SET", "k", "v")
	assert.Equal(t, resp.SimpleString, v.Type)
	assert.Equal(t, "OK", v.Str)

	v = sendCommand(t, conn, "GET", "k")
	assert.Equal(t, resp.Bulk, v.Type)
	assert.Equal(t, []byte("v"), v.Bulk)
}

func TestGetMissingKeyReturnsNullBulk(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	v := sendCommand(t, conn, "GET", "nope")
	assert.True(t, v.IsNull())
}

func TestSetWithPXExpiresKey(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	sendCommand(t, conn, "SET", "k", "v", "PX", "50")
	v := sendCommand(t, conn, "GET", "k")
	assert.Equal(t, []byte("v"), v.Bulk)

	time.Sleep(100 * time.Millisecond)
	v = sendCommand(t, conn, "GET", "k")
	assert.True(t, v.IsNull())
}

func TestHSetHGet(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	v := sendCommand(t, conn, "HSET", "h", "f", "x")
	assert.Equal(t, resp.Integer, v.Type)
	assert.Equal(t, int64(1), v.Int)

	v = sendCommand(t, conn, "HGET", "h", "f")
	assert.Equal(t, []byte("x"), v.Bulk)
}

func TestDelReturnsAuthoritativeCount(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	sendCommand(t, conn, "SET", "a", "1")
	sendCommand(t, conn, "SET", "b", "2")

	v := sendCommand(t, conn, "DEL", "a", "b", "c")
	assert.Equal(t, int64(2), v.Int)
}

func TestAuthGateRejectsUntilAuthenticated(t *testing.T) {
	h := newHarness(t, "secret")
	conn := h.dial(t)

	v := sendCommand(t, conn, "GET", "k")
	assert.Equal(t, resp.Error, v.Type)
	assert.Contains(t, v.Str, "NOAUTH")

	v = sendCommand(t, conn, "PING")
	assert.Equal(t, resp.SimpleString, v.Type)

	v = sendCommand(t, conn, "AUTH", "wrong")
	assert.Equal(t, resp.Error, v.Type)
	assert.Contains(t, v.Str, "WRONGPASS")

	v = sendCommand(t, conn, "AUTH", "secret")
	assert.Equal(t, "OK", v.Str)

	v = sendCommand(t, conn, "GET", "k")
	assert.True(t, v.IsNull())
}

func TestProtocolErrorsCarryErrPrefix(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	v := sendCommand(t, conn, "FOO")
	assert.Equal(t, resp.Error, v.Type)
	assert.True(t, strings.HasPrefix(v.Str, "ERR "), "want ERR-prefixed reply, got %q", v.Str)

	v = sendCommand(t, conn, "GET")
	assert.Equal(t, resp.Error, v.Type)
	assert.True(t, strings.HasPrefix(v.Str, "ERR "), "want ERR-prefixed reply, got %q", v.Str)
}

func TestWrongTypeErrors(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	sendCommand(t, conn, "SET", "str", "v")
	v := sendCommand(t, conn, "HGET", "str", "f")
	assert.Equal(t, resp.Error, v.Type)
	assert.Contains(t, v.Str, "WRONGTYPE")

	sendCommand(t, conn, "HSET", "hash", "f", "v")
	v = sendCommand(t, conn, "GET", "hash")
	assert.Equal(t, resp.Error, v.Type)
	assert.Contains(t, v.Str, "WRONGTYPE")
}

func TestKeysGlobMatch(t *testing.T) {
	h := newHarness(t, "")
	conn := h.dial(t)

	sendCommand(t, conn, "SET", "user:1", "a")
	sendCommand(t, conn, "SET", "user:2", "b")
	sendCommand(t, conn, "SET", "order:1", "c")

	v := sendCommand(t, conn, "KEYS", "user:*")
	require.Equal(t, resp.Array, v.Type)
	assert.Len(t, v.Array, 2)
}
