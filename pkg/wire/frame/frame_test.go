package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Type: TypeControl, Payload: []byte(`{"type":"ping"}`)}
	require.NoError(t, Encode(&buf, want))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: TypeData, Payload: []byte("abc")}))
	require.NoError(t, Encode(&buf, Frame{Type: TypeControl, Payload: []byte("xyz")}))

	f1, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeData, f1.Type)

	f2, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeControl, f2.Type)
}

func TestEncodeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, Frame{Type: TypeData, Payload: make([]byte, MaxFrameSize)})
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadRejectsOversizedDeclaredLength(t *testing.T) {
	var lenBuf [4]byte
	buf := bytes.NewBuffer(nil)
	// Hand-craft a header declaring a length over the cap; Read must
	// reject before attempting to allocate or read the body.
	putUint32LE(lenBuf[:], MaxFrameSize+1)
	buf.Write(lenBuf[:])

	_, err := Read(buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadShortStreamReturnsUnexpectedEOF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: TypeData, Payload: []byte("hello")}))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

	_, err := Read(truncated)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: TypeData, Payload: []byte("x")}))
	raw := buf.Bytes()
	raw[4] = 0xEE // stomp the type byte after the length prefix

	_, err := Read(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrUnknownType)
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
