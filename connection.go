package neomigrate

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// userAgent identifies this tool to the server.
const userAgent = "neomigrate"

// Connection owns a verified Bolt driver.  A Connection is either fully
// verified and open or it does not exist; Open never returns a handle
// in an unverified state.  Whoever receives the Connection owns it and
// must Close it exactly once.
type Connection struct {
	driver neo4j.DriverWithContext
}

// Open connects to the server at address with basic authentication and
// verifies connectivity with a single synchronous round trip.  The
// driver is configured with the bounded pool size, a fixed user agent
// and protocol logging limited to errors.  Constructing the driver does
// not authenticate; a credential mismatch surfaces during verification.
// If verification fails for any reason the just-created driver is
// closed before the error propagates.  No retries happen at this layer.
func Open(ctx context.Context, address, username string, password []byte, maxPoolSize int) (*Connection, error) {
	if maxPoolSize < 1 {
		maxPoolSize = 1
	}
	driver, err := neo4j.NewDriverWithContext(address, neo4j.BasicAuth(username, string(password), ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = maxPoolSize
			c.UserAgent = userAgent + "/" + Version
			c.Log = log.ToConsole(log.ERROR)
		})
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}
	if err := verify(ctx, driver); err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}
	return &Connection{driver: driver}, nil
}

// driverResource is the subset of the driver the bootstrap touches.
type driverResource interface {
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// verify runs the connectivity round trip.  The deferred close runs on
// every exit path that is not a successful verification, including a
// panicking driver.
func verify(ctx context.Context, d driverResource) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = d.Close(ctx)
			panic(r)
		}
		if err != nil {
			_ = d.Close(ctx)
		}
	}()
	return d.VerifyConnectivity(ctx)
}

// Session opens a session against the given database; empty selects the
// server default.
func (c *Connection) Session(ctx context.Context, database string) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
}

// Close releases the underlying driver.
func (c *Connection) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}
