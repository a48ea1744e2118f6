// Package server wires the store, bus, and persistence subsystems into a
// running RESP listener: a per-connection handler state machine,
// a single writer task, and an admin HTTP surface, grounded on the
// teacher's handlers.go dispatch loop and its AppState auth gate.
package server

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/command"
	"github.com/ClaytonFelipe/Altilium-db/internal/logging"
	"github.com/ClaytonFelipe/Altilium-db/internal/resp"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// authState tracks where a connection sits in the password gate.
type authState int

const (
	unauthenticated authState = iota
	authenticated
	closing
)

// Server holds everything a connection handler needs to serve a client.
type Server struct {
	Store       *store.Store
	Bus         *bus.Bus
	RequirePass string
	Log         *logging.Logger

	// readBufSize sizes each connection's bufio.Reader and the initial
	// capacity of its frame buffer.
	readBufSize int

	connActive int64 // atomic; current open connection count

	// commandsTotal is wired up by NewMetrics when the admin surface is
	// enabled; nil otherwise, in which case command counting is a no-op.
	commandsTotal *prometheus.CounterVec
}

func New(s *store.Store, b *bus.Bus, requirePass string, log *logging.Logger) *Server {
	return &Server{Store: s, Bus: b, RequirePass: requirePass, Log: log, readBufSize: 4096}
}

// ActiveConnections reports the number of connections currently open,
// sampled by the admin metrics surface.
func (srv *Server) ActiveConnections() int64 {
	return atomic.LoadInt64(&srv.connActive)
}

// Serve accepts connections on ln until ctx is cancelled.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		connID := uuid.NewString()
		atomic.AddInt64(&srv.connActive, 1)
		go srv.handleConn(ctx, conn, connID)
	}
}

func (srv *Server) handleConn(ctx context.Context, conn net.Conn, connID string) {
	defer conn.Close()
	defer atomic.AddInt64(&srv.connActive, -1)
	log := srv.Log
	if log != nil {
		log = log.With(connID[:8])
		log.Infof("connection opened from %s", conn.RemoteAddr())
	}

	state := unauthenticated
	if srv.RequirePass == "" {
		state = authenticated
	}

	reader := bufio.NewReaderSize(conn, srv.readBufSize)
	buf := make([]byte, 0, srv.readBufSize)

	for state != closing {
		v, err := readFrame(reader, &buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && log != nil {
				log.Debugf("connection closed: %v", err)
			}
			return
		}

		cmd, perr := command.Parse(v, time.Now().UnixMilli())
		if perr != nil {
			writeErr(conn, perr.Error())
			continue
		}

		if state == unauthenticated && cmd.Kind != command.Ping && cmd.Kind != command.Auth {
			writeErr(conn, "NOAUTH Authentication required")
			continue
		}

		reply, next := srv.dispatch(ctx, cmd, state)
		state = next
		if _, err := conn.Write(resp.Encode(reply)); err != nil {
			return
		}
	}
}

// readFrame decodes exactly one RESP value from reader, growing buf and
// re-reading as needed when Decode reports ErrIncomplete.
func readFrame(reader *bufio.Reader, buf *[]byte) (resp.Value, error) {
	for {
		v, n, err := resp.Decode(*buf)
		if err == nil {
			remaining := append([]byte(nil), (*buf)[n:]...)
			*buf = remaining
			return v, nil
		}
		if err != resp.ErrIncomplete {
			return resp.Value{}, err
		}

		chunk := make([]byte, 4096)
		n2, rerr := reader.Read(chunk)
		if n2 > 0 {
			*buf = append(*buf, chunk[:n2]...)
		}
		if rerr != nil {
			if n2 > 0 {
				continue
			}
			return resp.Value{}, rerr
		}
	}
}

func (srv *Server) dispatch(ctx context.Context, cmd command.Command, state authState) (resp.Value, authState) {
	if srv.commandsTotal != nil {
		srv.commandsTotal.WithLabelValues(commandName(cmd.Kind)).Inc()
	}
	switch cmd.Kind {
	case command.Ping:
		if cmd.Echo != "" {
			return resp.NewBulkString(cmd.Echo), state
		}
		return resp.NewSimpleString("PONG"), state

	case command.Auth:
		if srv.RequirePass == "" {
			return resp.NewError("ERR Client sent AUTH, but no password is set"), state
		}
		if subtle.ConstantTimeCompare([]byte(cmd.Password), []byte(srv.RequirePass)) == 1 {
			return resp.NewSimpleString("OK"), authenticated
		}
		return resp.NewError("WRONGPASS invalid password"), unauthenticated

	case command.Get:
		v, ok := srv.Store.Get(cmd.Key)
		if !ok {
			if kind, found := srv.Store.GetTyped(cmd.Key); found && kind != store.KindString {
				return resp.NewError("WRONGTYPE Operation against a key holding the wrong kind of value"), state
			}
			return resp.NewNullBulk(), state
		}
		return resp.NewBulk(v), state

	case command.HGet:
		v, ok := srv.Store.HGet(cmd.Key, cmd.Field)
		if !ok {
			if kind, found := srv.Store.GetTyped(cmd.Key); found && kind != store.KindHash {
				return resp.NewError("WRONGTYPE Operation against a key holding the wrong kind of value"), state
			}
			return resp.NewNullBulk(), state
		}
		return resp.NewBulk(v), state

	case command.Keys:
		g, err := compileGlob(cmd.Pattern)
		if err != nil {
			return resp.NewError(fmt.Sprintf("ERR invalid pattern: %v", err)), state
		}
		keys := srv.Store.Keys(g)
		elems := make([]resp.Value, len(keys))
		for i, k := range keys {
			elems[i] = resp.NewBulkString(k)
		}
		return resp.NewArray(elems), state

	case command.Set, command.HSet, command.Del:
		result, err := srv.publishAndWait(ctx, cmd)
		if err != nil {
			return resp.NewError("ERR " + err.Error()), state
		}
		switch cmd.Kind {
		case command.Set:
			return resp.NewSimpleString("OK"), state
		case command.HSet:
			return resp.NewInteger(int64(result.N)), state
		case command.Del:
			return resp.NewInteger(int64(result.N)), state
		}
	}
	return resp.NewError("ERR internal dispatch error"), state
}

// commandName returns the wire command name for kind, used to label the
// commandsTotal counter.
func commandName(kind command.Kind) string {
	switch kind {
	case command.Ping:
		return "PING"
	case command.Auth:
		return "AUTH"
	case command.Get:
		return "GET"
	case command.Set:
		return "SET"
	case command.HSet:
		return "HSET"
	case command.HGet:
		return "HGET"
	case command.Del:
		return "DEL"
	case command.Keys:
		return "KEYS"
	default:
		return "UNKNOWN"
	}
}

// publishAndWait publishes a mutating command and blocks for the
// writer's authoritative reply before answering the client, so the
// client never sees a predicted result that might diverge from what was
// actually applied.
func (srv *Server) publishAndWait(ctx context.Context, cmd command.Command) (bus.Result, error) {
	reply := make(chan bus.Result, 1)
	if err := srv.Bus.Publish(ctx, bus.Envelope{Cmd: cmd, Reply: reply}); err != nil {
		return bus.Result{}, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return bus.Result{}, ctx.Err()
	}
}

func writeErr(w io.Writer, msg string) {
	_, _ = w.Write(resp.Encode(resp.NewError(msg)))
}
