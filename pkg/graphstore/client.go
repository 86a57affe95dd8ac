// Package graphstore persists graph snapshots to, and loads them back
// from, an external shared Neo4j store so other sessions and users can
// reuse an already-built graph.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/semlens/semlens-engine/pkg/apperrors"
	"github.com/semlens/semlens-engine/pkg/config"
)

// Client wraps a Neo4j driver bound to one database.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewClient connects to the configured graph store and verifies
// connectivity. Fails with StoreUnavailableError when the store cannot be
// reached; connection failures are surfaced to the caller, never retried
// automatically.
func NewClient(ctx context.Context, cfg *config.GraphStoreConfig) (*Client, error) {
	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init graph store driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, &apperrors.StoreUnavailableError{Store: cfg.URI, Err: err}
	}

	return &Client{driver: driver, database: cfg.Database}, nil
}

// Runner returns a CypherRunner executing statements over this client's
// sessions.
func (c *Client) Runner() CypherRunner {
	return &sessionRunner{driver: c.driver, database: c.database}
}

// Close releases the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

// CypherRunner executes Cypher statements. The adapter is written against
// this interface so persistence logic can be exercised without a running
// store. Each ExecWrite call runs in its own transaction.
type CypherRunner interface {
	ExecWrite(ctx context.Context, query string, params map[string]any) error
	ExecRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

type sessionRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ CypherRunner = (*sessionRunner)(nil)

func (r *sessionRunner) ExecWrite(ctx context.Context, query string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (r *sessionRunner) ExecRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []map[string]any
		for res.Next(ctx) {
			out = append(out, res.Record().AsMap())
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return rows.([]map[string]any), nil
}
