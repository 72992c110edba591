// Package-level configuration for structured logging, shared by every Loop
// instance.
package coop

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

var pkgLogger atomic.Pointer[logiface.Logger[logiface.Event]]

// SetLogger installs logger as the package-level structured logger used by
// Loop and Context to emit diagnostic events: a task panic, a Loop starting
// or stopping, a Spawn rejected because the Loop is terminated, a Timer
// firing, and a Context being canceled. Passing nil disables logging.
//
// logger may be of any concrete logiface.Event type; it is generified via
// (*logiface.Logger[E]).Logger() before being stored.
func SetLogger[E logiface.Event](logger *logiface.Logger[E]) {
	if logger == nil {
		pkgLogger.Store(nil)
		return
	}
	pkgLogger.Store(logger.Logger())
}

// log returns the current package logger, or nil if logging is disabled.
func log() *logiface.Logger[logiface.Event] {
	return pkgLogger.Load()
}
