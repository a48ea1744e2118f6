// Package command translates decoded RESP frames into the small, typed
// Command variant that the rest of Altilium operates on, and re-encodes
// mutating commands back into RESP arrays for AOF persistence.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ClaytonFelipe/Altilium-db/internal/resp"
)

// Kind tags which operation a Command represents.
type Kind int

const (
	Ping Kind = iota
	Auth
	Get
	Set
	HSet
	HGet
	Del
	Keys
)

// Command is a parsed client request. Only the fields relevant to Kind are
// populated. Set, HSet, and Del are the only mutating kinds; they are the
// only ones published on the command bus.
type Command struct {
	Kind Kind

	// Ping
	Echo string
	// Auth
	Password string
	// Get, HGet (Key); Keys (Pattern)
	Key     string
	Pattern string
	// Set
	Value     []byte
	ExpiresAt int64 // absolute ms deadline; 0 means no expiry
	// HSet, HGet
	Field string
	// Del
	Keys []string
}

// IsMutating reports whether the command must be published on the bus.
func (c Command) IsMutating() bool {
	switch c.Kind {
	case Set, HSet, Del:
		return true
	default:
		return false
	}
}

// ProtocolError is returned by Parse when the frame is not a well-formed
// command request: wrong arity, wrong element types, or unknown verb.
type ProtocolError struct{ msg string }

func (e *ProtocolError) Error() string { return "ERR " + e.msg }

func protoErr(format string, args ...interface{}) error {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// Parse extracts a Command from a decoded RESP array of bulk strings. now
// supplies the current time in epoch milliseconds, used to turn a relative
// EX/PX argument on SET into the Command's absolute ExpiresAt.
func Parse(v resp.Value, now int64) (Command, error) {
	if v.Type != resp.Array || v.IsNull() {
		return Command{}, protoErr("expected a command array")
	}
	args, err := bulkStrings(v.Array)
	if err != nil {
		return Command{}, err
	}
	if len(args) == 0 {
		return Command{}, protoErr("empty command array")
	}

	name := strings.ToUpper(args[0])
	switch name {
	case "PING":
		if len(args) > 2 {
			return Command{}, protoErr("wrong number of arguments for 'ping'")
		}
		c := Command{Kind: Ping}
		if len(args) == 2 {
			c.Echo = args[1]
		}
		return c, nil

	case "AUTH":
		if len(args) != 2 {
			return Command{}, protoErr("wrong number of arguments for 'auth'")
		}
		return Command{Kind: Auth, Password: args[1]}, nil

	case "GET":
		if len(args) != 2 {
			return Command{}, protoErr("wrong number of arguments for 'get'")
		}
		return Command{Kind: Get, Key: args[1]}, nil

	case "SET":
		return parseSet(args, now)

	case "HSET":
		if len(args) != 4 {
			return Command{}, protoErr("wrong number of arguments for 'hset'")
		}
		return Command{Kind: HSet, Key: args[1], Field: args[2], Value: []byte(args[3])}, nil

	case "HGET":
		if len(args) != 3 {
			return Command{}, protoErr("wrong number of arguments for 'hget'")
		}
		return Command{Kind: HGet, Key: args[1], Field: args[2]}, nil

	case "DEL":
		if len(args) < 2 {
			return Command{}, protoErr("wrong number of arguments for 'del'")
		}
		return Command{Kind: Del, Keys: append([]string(nil), args[1:]...)}, nil

	case "KEYS":
		if len(args) != 2 {
			return Command{}, protoErr("wrong number of arguments for 'keys'")
		}
		return Command{Kind: Keys, Pattern: args[1]}, nil

	default:
		return Command{}, protoErr("unknown command '%s'", args[0])
	}
}

func parseSet(args []string, now int64) (Command, error) {
	if len(args) < 3 {
		return Command{}, protoErr("wrong number of arguments for 'set'")
	}
	c := Command{Kind: Set, Key: args[1], Value: []byte(args[2])}

	rest := args[3:]
	for len(rest) > 0 {
		opt := strings.ToUpper(rest[0])
		switch opt {
		case "EX", "PX":
			if len(rest) < 2 {
				return Command{}, protoErr("syntax error")
			}
			n, err := strconv.ParseInt(rest[1], 10, 64)
			if err != nil || n <= 0 {
				return Command{}, protoErr("invalid expire time in 'set' command")
			}
			if opt == "EX" {
				n *= 1000
			}
			c.ExpiresAt = now + n
			rest = rest[2:]
		default:
			return Command{}, protoErr("syntax error")
		}
	}
	return c, nil
}

func bulkStrings(vals []resp.Value) ([]string, error) {
	out := make([]string, len(vals))
	for i, v := range vals {
		if v.Type != resp.Bulk || v.IsNull() {
			return nil, protoErr("expected bulk string argument at position %d", i)
		}
		out[i] = string(v.Bulk)
	}
	return out, nil
}

// ToRespArray re-encodes a mutating Command into the RESP array form used
// by the AOF, so replaying the file reproduces the exact command.
func ToRespArray(c Command) resp.Value {
	switch c.Kind {
	case Set:
		elems := []resp.Value{resp.NewBulkString("SET"), resp.NewBulkString(c.Key), resp.NewBulk(c.Value)}
		if c.ExpiresAt != 0 {
			elems = append(elems, resp.NewBulkString("PXAT"), resp.NewBulkString(strconv.FormatInt(c.ExpiresAt, 10)))
		}
		return resp.NewArray(elems)
	case HSet:
		return resp.NewArray([]resp.Value{
			resp.NewBulkString("HSET"), resp.NewBulkString(c.Key),
			resp.NewBulkString(c.Field), resp.NewBulk(c.Value),
		})
	case Del:
		elems := make([]resp.Value, 0, len(c.Keys)+1)
		elems = append(elems, resp.NewBulkString("DEL"))
		for _, k := range c.Keys {
			elems = append(elems, resp.NewBulkString(k))
		}
		return resp.NewArray(elems)
	default:
		return resp.NewArray(nil)
	}
}

// FromRespArray parses an AOF-encoded command frame back into a Command.
// It accepts the PXAT form ToRespArray emits for SET, in addition to the
// client-facing EX/PX forms, since a hand-edited AOF may carry either.
func FromRespArray(v resp.Value) (Command, error) {
	if v.Type != resp.Array || v.IsNull() {
		return Command{}, protoErr("expected a command array")
	}
	args, err := bulkStrings(v.Array)
	if err != nil {
		return Command{}, err
	}
	if len(args) == 0 {
		return Command{}, protoErr("empty command array")
	}

	name := strings.ToUpper(args[0])
	switch name {
	case "SET":
		if len(args) >= 5 && strings.ToUpper(args[3]) == "PXAT" {
			ts, perr := strconv.ParseInt(args[4], 10, 64)
			if perr != nil {
				return Command{}, protoErr("invalid PXAT timestamp")
			}
			return Command{Kind: Set, Key: args[1], Value: []byte(args[2]), ExpiresAt: ts}, nil
		}
		return parseSet(args, 0)
	case "HSET":
		if len(args) != 4 {
			return Command{}, protoErr("wrong number of arguments for 'hset'")
		}
		return Command{Kind: HSet, Key: args[1], Field: args[2], Value: []byte(args[3])}, nil
	case "DEL":
		if len(args) < 2 {
			return Command{}, protoErr("wrong number of arguments for 'del'")
		}
		return Command{Kind: Del, Keys: append([]string(nil), args[1:]...)}, nil
	default:
		return Command{}, protoErr("unsupported AOF command '%s'", args[0])
	}
}
