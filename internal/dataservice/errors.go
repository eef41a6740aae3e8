package dataservice

import "fmt"

// ServiceError reports a transport or server-side failure after retries
// were exhausted. It wraps the error of the last attempt.
type ServiceError struct {
	Endpoint string
	Status   int // last HTTP status, 0 for transport failures
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("dataservice: %s failed after %d attempt(s) (status %d): %v",
		e.Endpoint, e.Attempts, e.Status, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// AuthError reports an authentication rejection (401/403). It is never
// retried.
type AuthError struct {
	Endpoint string
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("dataservice: %s rejected authentication (status %d)", e.Endpoint, e.Status)
}
