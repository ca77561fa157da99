package dispatch

import "fmt"

// NoProvidersError is the fatal, pre-attempt failure: zero eligible
// candidates existed for the operation. Distinct from ExhaustedError so
// operators can tell "nothing configured" from "everything broken".
type NoProvidersError struct {
	Operation string
}

func (e *NoProvidersError) Error() string {
	return fmt.Sprintf("dispatch: no providers configured for %s", e.Operation)
}

// ExhaustedError is the fatal, post-attempt failure: every candidate was
// tried exactly once and failed. It carries the attempt count and the last
// failing provider for diagnosability.
type ExhaustedError struct {
	Operation    string
	Attempts     int
	LastProvider string
	LastErr      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("dispatch: all %d providers failed for %s (last: %s): %v",
		e.Attempts, e.Operation, e.LastProvider, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
