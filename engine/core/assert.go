package core

import "fmt"

// AssertionError is the panic value raised by Assert.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Msg
}

// Assert aborts the current frame when an authoring precondition does not hold.
// Broken preconditions are programming errors and are never returned as values.
func Assert(cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	err := &AssertionError{Msg: fmt.Sprintf(msg, args...)}
	getLogger().Error(err.Error())
	panic(err)
}
