package internal

import "fmt"

// storeConnectionError is returned by the node service when the connection to
// the state store fails.
type storeConnectionError struct {
	cause error
}

func (e storeConnectionError) Unwrap() error {
	return e.cause
}

func (e storeConnectionError) Error() string {
	return fmt.Sprintf("lost the connection to the state store: %s", e.cause.Error())
}
