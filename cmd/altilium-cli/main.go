// Command altilium-cli is a minimal line-based REPL client for talking
// to an altilium-server instance, grounded on the teacher's removed
// go-client package: connect, write one command per line, print the
// reply, repeat.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/ClaytonFelipe/Altilium-db/internal/resp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "address of the altilium-server to connect to")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "altilium-cli: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected to %s\n", *addr)
	in := bufio.NewScanner(os.Stdin)
	connReader := bufio.NewReader(conn)

	for {
		fmt.Print("altilium> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)

		elems := make([]resp.Value, len(args))
		for i, a := range args {
			elems[i] = resp.NewBulkString(a)
		}
		if _, err := conn.Write(resp.Encode(resp.NewArray(elems))); err != nil {
			fmt.Fprintf(os.Stderr, "write error: %v\n", err)
			return
		}

		reply, err := readReply(connReader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			return
		}
		fmt.Println(formatReply(reply))
	}
}

func readReply(r *bufio.Reader) (resp.Value, error) {
	buf := make([]byte, 0, 512)
	for {
		v, n, err := resp.Decode(buf)
		if err == nil {
			_ = n
			return v, nil
		}
		if err != resp.ErrIncomplete {
			return resp.Value{}, err
		}
		b, err := r.ReadByte()
		if err != nil {
			return resp.Value{}, err
		}
		buf = append(buf, b)
	}
}

func formatReply(v resp.Value) string {
	switch v.Type {
	case resp.SimpleString:
		return v.Str
	case resp.Error:
		return "(error) " + v.Str
	case resp.Integer:
		return fmt.Sprintf("(integer) %d", v.Int)
	case resp.Bulk:
		if v.BulkNull {
			return "(nil)"
		}
		return fmt.Sprintf("%q", string(v.Bulk))
	case resp.Array:
		if v.ArrayNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = formatReply(e)
		}
		return fmt.Sprintf("%d) %s", len(v.Array), strings.Join(parts, ", "))
	default:
		return "(unknown reply)"
	}
}
