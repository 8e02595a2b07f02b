// Package storetest holds behavioural suites shared by every store backend.
// Backends call the Run* functions from their own tests.
package storetest
