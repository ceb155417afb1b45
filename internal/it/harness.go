package it

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"replicator/internal/config"
	"replicator/internal/coordinator"
	"replicator/internal/replica"
	"replicator/internal/server"
)

const bufSize = 1 << 20

// Cluster is an in-process coordinator with its replicas, served over an
// in-memory gRPC connection.
type Cluster struct {
	coordinator *coordinator.Coordinator
	replicas    []*replica.MemoryReplica
	server      *server.Server
	client      *server.Client

	lis      *bufconn.Listener
	serveErr chan error

	mu      sync.Mutex
	stopped bool
}

// StartCluster builds the replicas and coordinator described by cfg, starts
// the gRPC server and waits until it reports serving.
func StartCluster(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clk := clock.New()
	replicas := cfg.BuildReplicas(clk, logger)
	coord := coordinator.New(replica.Set(replicas...),
		coordinator.WithClock(clk),
		coordinator.WithLogger(logger),
	)

	c := &Cluster{
		coordinator: coord,
		replicas:    replicas,
		server:      server.New(coord, cfg.DefaultMode, logger),
		lis:         bufconn.Listen(bufSize),
		serveErr:    make(chan error, 1),
	}
	go func() {
		c.serveErr <- c.server.Serve(c.lis)
	}()

	client, err := server.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return c.lis.DialContext(ctx)
		}))
	if err != nil {
		c.server.Stop()
		return nil, fmt.Errorf("failed to dial cluster: %w", err)
	}
	c.client = client

	if err := c.waitForReady(ctx, 5*time.Second); err != nil {
		_ = c.Stop(ctx)
		return nil, fmt.Errorf("cluster failed to become ready: %w", err)
	}
	return c, nil
}

// waitForReady polls the health service until the coordinator is serving.
func (c *Cluster) waitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-c.serveErr:
			return fmt.Errorf("server exited: %w", err)
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for %s", server.ServiceName)
			}

			healthCtx, cancel := context.WithTimeout(ctx, time.Second)
			ready, err := c.client.Ready(healthCtx)
			cancel()

			if err == nil && ready {
				return nil
			}
		}
	}
}

// Client returns the gRPC client connected to the cluster.
func (c *Cluster) Client() *server.Client {
	return c.client
}

// Coordinator returns the in-process coordinator.
func (c *Cluster) Coordinator() *coordinator.Coordinator {
	return c.coordinator
}

// GetReplica returns a replica by ID.
func (c *Cluster) GetReplica(id string) *replica.MemoryReplica {
	for _, r := range c.replicas {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// Replicas returns every replica in configuration order.
func (c *Cluster) Replicas() []*replica.MemoryReplica {
	return c.replicas
}

// Stop closes the client, stops the server and joins every outstanding
// replica call. It is safe to call more than once.
func (c *Cluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	if c.client != nil {
		_ = c.client.Close()
	}
	c.server.Stop()
	return c.coordinator.Close(ctx)
}
