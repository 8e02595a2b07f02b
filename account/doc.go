// Package account defines the user identity record and the persistence
// contract the Engine relies on.
//
// Implementations live in store/memory and store/postgres. Both treat the
// failed-login counter and lockout end as one atomically updated pair, because
// a lost update there is a lockout bypass.
package account
