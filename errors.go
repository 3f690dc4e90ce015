package neomigrate

import "fmt"

// UnsupportedConfigError reports a configuration that requests a
// capability the current runtime cannot provide.  It is raised before
// any connection attempt.
type UnsupportedConfigError struct {
	Reason string
}

func (e *UnsupportedConfigError) Error() string {
	return e.Reason
}

// ConnectionError reports a failure to establish or verify the Bolt
// connection.  By the time a ConnectionError is returned the unverified
// driver has already been closed; callers never receive a live resource
// paired with an error.  The message carries the address and the
// underlying cause, never the credentials.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
