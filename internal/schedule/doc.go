// Package schedule provides deferred execution.
//
// RunAt and RunAfter execute a function on a detached goroutine once a time
// has been reached, unless the context is cancelled first.
package schedule
