package resp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/salviati-labs/cuckoofilter/cuckoo"
)

func respCommand(args ...string) []byte {
	out := fmt.Sprintf("*%d\r\n", len(args))
	for _, a := range args {
		out += fmt.Sprintf("$%d\r\n%s\r\n", len(a), a)
	}
	return []byte(out)
}

func startTestServer(t *testing.T) (*Server, net.Conn) {
	t.Helper()
	f, err := cuckoo.NewBuilder(1000).Build()
	require.NoError(t, err)

	srv := NewServer("127.0.0.1:0", f, nil, "test-node")
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, conn
}

func TestRESPPutContainsDel(t *testing.T) {
	_, conn := startTestServer(t)
	r := bufio.NewReader(conn)

	conn.Write(respCommand("PUT", "hello"))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":1\r\n", line)

	conn.Write(respCommand("CONTAINS", "hello"))
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":1\r\n", line)

	conn.Write(respCommand("CONTAINS", "missing"))
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":0\r\n", line)

	conn.Write(respCommand("DEL", "hello"))
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":1\r\n", line)

	conn.Write(respCommand("CONTAINS", "hello"))
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":0\r\n", line)
}

func TestRESPUnknownCommandReturnsError(t *testing.T) {
	_, conn := startTestServer(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)

	conn.Write(respCommand("BOGUS"))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "-ERR")
}

func TestRESPStatsReturnsBulkString(t *testing.T) {
	_, conn := startTestServer(t)
	r := bufio.NewReader(conn)

	conn.Write(respCommand("PUT", "x"))
	_, err := r.ReadString('\n')
	require.NoError(t, err)

	conn.Write(respCommand("STATS"))
	sizeLine, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, sizeLine, "$")

	body, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, body, "count:1")
}
