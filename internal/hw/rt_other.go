//go:build !linux

package hw

// LockMemory is a no-op outside Linux.
func LockMemory() error { return nil }
