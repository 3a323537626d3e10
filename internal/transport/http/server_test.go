package httptransport

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := DefaultServerConfig(":0")
	srv := NewServer(cfg, http.NotFoundHandler())

	require.Equal(t, ":0", srv.Addr)
	require.Equal(t, cfg.ReadTimeout, srv.ReadTimeout)
	require.Equal(t, cfg.ReadHeaderTimeout, srv.ReadHeaderTimeout)
	require.Equal(t, cfg.WriteTimeout, srv.WriteTimeout)
	require.Equal(t, cfg.IdleTimeout, srv.IdleTimeout)
}

func TestRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := NewServer(DefaultServerConfig(addr), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(DefaultServerConfig(ln.Addr().String()), http.NotFoundHandler())
	err = Run(context.Background(), srv, time.Second)
	require.Error(t, err)
}
