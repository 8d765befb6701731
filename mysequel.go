// Package mysequel is a resilience layer over a database connection pool.
//
// # Overview
//
// mysequel does not speak any wire protocol itself. It orchestrates the life
// of every borrowed connection:
//   - acquire a connection from the underlying pool
//   - run the configured bootstrap statements on it
//   - execute the caller's query
//   - release the connection on success, destroy it on any failure
//
// A health sweep probes idle connections with a ping query, destroys the
// ones that fail or answer unexpectedly, and reports every failure as data.
//
// # Quick Start
//
//	import "github.com/ChiperSoft/mysequel"
//
//	handle, err := mysequel.Open(ctx, mysequel.Config{
//		Driver:   "mysql",
//		Host:     "localhost",
//		Port:     3306,
//		Username: "app",
//		Password: "secret",
//		Database: "app",
//		Options: mysequel.Overrides{
//			ConnectionBootstrap: []mysequel.Statement{
//				{SQL: "SET time_zone = '+00:00'"},
//			},
//			Ping: &mysequel.PingOverrides{Frequency: mysequel.Duration(time.Minute)},
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer handle.Close(ctx)
//
//	rows, err := handle.Query(ctx, "SELECT id, name FROM users WHERE id = :id", map[string]any{"id": 7})
//
// # Collaborators
//
// The underlying pool and the query primitive are interfaces (Pool, Conn,
// Executor). SQLPool implements both on top of database/sql; New accepts any
// other implementation, and FromCallbacks adapts callback-style pools.
//
// # Timeouts
//
// The layer enforces no deadlines of its own. A hung acquisition or query
// hangs the call until the context passed to it is done.
//
// # Configuration
//
// Config can be built in code or loaded from MYSEQUEL_* environment variables
// with LoadConfigFromEnv / OpenEnv.
package mysequel

// Version returns the current library version.
func Version() string { return "v0.1.0" }
