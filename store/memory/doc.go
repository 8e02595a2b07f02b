// Package memory provides mutex-guarded, process-local implementations of the
// user, refresh and single-use stores. Every read-modify-write runs inside one
// critical section, which gives the same atomicity the SQL and Redis stores
// provide. Intended for tests, the load test and single-node development.
package memory
