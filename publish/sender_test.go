package publish

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func udpSink(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().String()
}

func readDatagram(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestSenderUDP(t *testing.T) {
	t.Parallel()

	t.Run("delivers matching flags", func(t *testing.T) {
		t.Parallel()
		sink, addr := udpSink(t)

		s := NewSender()
		require.NoError(t, s.AddUDPTarget(addr, FlagPose))
		require.NoError(t, s.Start())
		defer s.Stop()

		s.Send([]byte("hello"), FlagPose)
		assert.Equal(t, "hello", string(readDatagram(t, sink)))
	})

	t.Run("mask filters other flags", func(t *testing.T) {
		t.Parallel()
		sink, addr := udpSink(t)

		s := NewSender()
		require.NoError(t, s.AddUDPTarget(addr, FlagPose))
		require.NoError(t, s.Start())
		defer s.Stop()

		s.Send([]byte("diag"), FlagDiag)
		s.Send([]byte("pose"), FlagPose)

		// Only the pose line arrives.
		assert.Equal(t, "pose", string(readDatagram(t, sink)))
	})

	t.Run("header prefixes every line", func(t *testing.T) {
		t.Parallel()
		sink, addr := udpSink(t)

		s := NewSender()
		s.SetHeader("site7")
		require.NoError(t, s.AddUDPTarget(addr, FlagPose))
		require.NoError(t, s.Start())
		defer s.Stop()

		s.Send([]byte("data"), FlagPose)
		assert.Equal(t, "site7:data", string(readDatagram(t, sink)))
	})

	t.Run("send before start is a no-op", func(t *testing.T) {
		t.Parallel()
		s := NewSender()
		require.NoError(t, s.AddUDPTarget("127.0.0.1:1", FlagPose))
		s.Send([]byte("dropped"), FlagPose)
	})

	t.Run("rejects an unresolvable target", func(t *testing.T) {
		t.Parallel()
		s := NewSender()
		assert.Error(t, s.AddUDPTarget("not-an-address", FlagPose))
	})
}

func TestSenderTCP(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 2048)
		n, err := conn.Read(buf)
		if err == nil {
			got <- buf[:n]
		}
	}()

	s := NewSender()
	s.AddTCPTarget(ln.Addr().String(), FlagPose)
	require.NoError(t, s.Start())
	defer s.Stop()

	s.Send([]byte("tcp-line"), FlagPose)

	select {
	case data := <-got:
		assert.Equal(t, "tcp-line", string(data))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for tcp delivery")
	}
}
