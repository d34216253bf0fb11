package natsjs_test

import (
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/velmie/retry/natsjs/conn"
)

func runBasicJetStreamServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natsserver.RunServer(&opts)
	t.Cleanup(func() {
		s.Shutdown()
		s.WaitForShutdown()
	})
	return s
}

func connect(t *testing.T, s *server.Server) nats.JetStreamContext {
	t.Helper()
	c, err := conn.Establish(conn.URL(s.ClientURL()))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c.JetStreamContext()
}
