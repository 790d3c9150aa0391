package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs a NATS server inside the process so `vvtts serve`
// works without a separate broker.
type EmbeddedServer struct {
	ns *server.Server
}

// StartEmbedded starts a server on host:port. A port of -1 picks a free one.
func StartEmbedded(host string, port int) (*EmbeddedServer, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server failed to start within 5 seconds")
	}

	log.Info("Embedded NATS server started", "url", ns.ClientURL())
	return &EmbeddedServer{ns: ns}, nil
}

// ClientURL is the address clients should dial.
func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	log.Info("Shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
