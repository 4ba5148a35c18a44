package server

import (
	"errors"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

var (
	lg *log.Logger
)

func TestMain(m *testing.M) {
	lg = log.New(os.Stdout, "test --> ", log.Ldate|log.Lmicroseconds)
	os.Exit(m.Run())
}

func TestSubscriber_Wants(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		wants  bool
	}{
		{prefix: "", path: "/anything", wants: true},
		{prefix: "/data", path: "/data", wants: true},
		{prefix: "/data", path: "/data/", wants: true},
		{prefix: "/data/", path: "/data/x", wants: true},
		{prefix: "/data", path: "/data/x/y/", wants: true},
		{prefix: "/data", path: "/database", wants: false},
		{prefix: "/data", path: "/other", wants: false},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.path, func(t *testing.T) {
			sub := &subscriber{prefix: tt.prefix}
			assert.Equal(t, tt.wants, sub.wants(tt.path))
		})
	}
}

func TestServer_BroadcastDropsForSlowSubscriber(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil, lg)
	fast := s.subscribe("", "/a")
	other := s.subscribe("", "/b")

	hook := s.EventHook("m")
	record := model.Build(1, "/a/x", model.ItemCreated|model.ItemIsFile, nil, nil)
	for i := 0; i < subscriberBuffer+5; i++ {
		hook([]model.EventRecord{record})
	}

	assert.Len(t, fast.events, subscriberBuffer)
	assert.Empty(t, other.events)

	batch := <-fast.events
	require.Len(t, batch, 1)
	assert.Equal(t, "m", batch[0].Monitor)
	assert.Equal(t, "/a/x", batch[0].Path)

	s.unsubscribe(fast)
	s.unsubscribe(other)
	assert.Zero(t, s.Subscribers())
}

func TestServer_ListenAndExit(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewServer("127.0.0.1:0", nil, nil, lg)
	require.NoError(t, s.Listen())
	require.NotNil(t, s.Addr())

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	require.NoError(t, s.Exit())
	require.NoError(t, <-done)
	require.NoError(t, s.Exit())
}

func TestServer_BadTLSFiles(t *testing.T) {
	s := NewServer("127.0.0.1:0", &ServerTLS{Cert: "missing.crt", Key: "missing.key"}, nil, lg)
	assert.Error(t, s.Listen())
}

func runServer(t *testing.T, s *Server) func() {
	t.Helper()
	require.NoError(t, s.Listen())
	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	return func() {
		require.NoError(t, s.Exit())
		require.NoError(t, <-done)
	}
}

func TestServer_SilentPeerIsDisconnected(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewServer("127.0.0.1:0", nil, nil, lg)
	s.handshakeTimeout = 100 * time.Millisecond
	stop := runServer(t, s)
	defer stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, s.Subscribers())
}

func TestServer_OversizedRequestIsRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewServer("127.0.0.1:0", nil, nil, lg)
	stop := runServer(t, s)
	defer stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	written := make(chan struct{})
	go func() {
		defer close(written)
		_, _ = conn.Write([]byte(strings.Repeat("x", 2*maxRequestFrame) + "\n"))
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "server kept the connection open")
	}
	_ = conn.Close()
	<-written
	assert.Zero(t, s.Subscribers())
}

func TestSubscriptionPrefix_ResolvesSymlinks(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	target := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "d")
	require.NoError(t, os.Symlink(target, link))

	assert.Equal(t, "", subscriptionPrefix(""))
	assert.Equal(t, filepath.Join(target, "sub"), subscriptionPrefix(filepath.Join(link, "sub")))

	sub := &subscriber{prefix: subscriptionPrefix(link)}
	assert.True(t, sub.wants(filepath.Join(target, "x.txt")))
}
