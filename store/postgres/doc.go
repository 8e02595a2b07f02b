// Package postgres implements the user, refresh and single-use stores on
// PostgreSQL through pgx.
//
// Every read-modify-write is a single statement or a transaction holding a
// row lock: failed-login counting is one UPDATE ... RETURNING, rotation locks
// the presented row with SELECT ... FOR UPDATE, and single-use consumption is a
// conditional UPDATE that only one caller can win.
//
// The schema ships as embedded golang-migrate migrations; see Migrator.
package postgres
