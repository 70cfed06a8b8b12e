package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineTransportSendReceiveRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := newLineTransport(clientConn, DefaultMaxFrameSize)
	server := newLineTransport(serverConn, DefaultMaxFrameSize)

	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	go func() {
		_ = client.Send(context.Background(), msg)
	}()

	got, err := server.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestLineTransportTrimsTrailingCR(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := newLineTransport(serverConn, DefaultMaxFrameSize)

	go func() {
		_, _ = clientConn.Write([]byte("{\"jsonrpc\":\"2.0\"}\r\n"))
	}()

	got, err := server.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0"}`, string(got))
}

func TestLineTransportRejectsOversizedFrame(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := newLineTransport(clientConn, 16)
	err := client.Send(context.Background(), make([]byte, 64))
	assert.Error(t, err)
}

func TestLineTransportCloseIsIdempotent(t *testing.T) {
	_, serverConn := net.Pipe()
	tr := newLineTransport(serverConn, DefaultMaxFrameSize)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
}

func TestDialTcpRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		defer conn.Close()
		_, err = conn.Write([]byte("{\"jsonrpc\":\"2.0\"}\n"))
		acceptErr <- err
	}()

	hp := policy.NewHostPolicy(true)
	client, err := DialTcp(context.Background(), hp, ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	got, err := client.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0"}`, string(got))
	require.NoError(t, <-acceptErr)
}

func TestDialTcpRejectsPrivateAddressByDefault(t *testing.T) {
	hp := policy.NewHostPolicy(false)
	_, err := DialTcp(context.Background(), hp, "127.0.0.1:9999", time.Second)
	assert.Error(t, err)
}
