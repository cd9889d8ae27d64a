package resp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderParsesBulkStringArray(t *testing.T) {
	raw := "*2\r\n$3\r\nPUT\r\n$5\r\nhello\r\n"
	r := NewReader(strings.NewReader(raw))

	v, err := r.ReadValue()
	require.NoError(t, err)
	require.Equal(t, byte(typeArray), v.Type)
	require.Len(t, v.Array, 2)

	cmd, err := AsCommand(v)
	require.NoError(t, err)
	require.Equal(t, "PUT", cmd.Verb)
	require.Equal(t, []string{"hello"}, cmd.Args)
}

func TestReaderParsesNullBulkString(t *testing.T) {
	r := NewReader(strings.NewReader("$-1\r\n"))
	v, err := r.ReadValue()
	require.NoError(t, err)
	require.True(t, v.Null)
}

func TestReaderParsesInteger(t *testing.T) {
	r := NewReader(strings.NewReader(":42\r\n"))
	v, err := r.ReadValue()
	require.NoError(t, err)
	require.Equal(t, int64(42), v.Int)
}

func TestAsCommandRejectsNonArray(t *testing.T) {
	_, err := AsCommand(Value{Type: typeBulkString, Str: "PUT"})
	require.Error(t, err)
}

func TestAsCommandRejectsEmptyArray(t *testing.T) {
	_, err := AsCommand(Value{Type: typeArray, Array: []Value{}})
	require.Error(t, err)
}

func TestReplyFormatting(t *testing.T) {
	var reply Reply
	require.Equal(t, []byte("+OK\r\n"), reply.OK())
	require.Equal(t, []byte(":7\r\n"), reply.Integer(7))
	require.Equal(t, []byte("$5\r\nhello\r\n"), reply.BulkString("hello"))
	require.Equal(t, []byte("$-1\r\n"), reply.Null())
	require.Equal(t, []byte("-ERR boom\r\n"), reply.Error("boom"))
}
