// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types shared by the bridge packages.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrEngineClosed    = fmt.Errorf("engine is shut down")
	ErrHandleExists    = fmt.Errorf("handle already attached")
	ErrUnknownHandle   = fmt.Errorf("unknown handle")
	ErrWaitUnsupported = fmt.Errorf("socket waits not supported on this platform")
	ErrReactorClosed   = fmt.Errorf("reactor is closed")
	ErrSocketCondition = fmt.Errorf("error condition on socket")
)

// ContractViolation marks a broken invariant between the bridge and its
// collaborators: an unknown descriptor referenced by the transport engine,
// a double-attached context, a drain off the reactor thread. Violations
// are fatal and are raised as panics, never returned for retry.
type ContractViolation struct {
	Detail string
}

func (v *ContractViolation) Error() string {
	return "bridge contract violation: " + v.Detail
}

// Violationf builds a ContractViolation suitable as a panic value.
func Violationf(format string, a ...any) *ContractViolation {
	return &ContractViolation{Detail: fmt.Sprintf(format, a...)}
}
