package bus

import (
	"errors"
	"fmt"
)

// ErrServiceNotFound is returned when Call targets a service with no route
// and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("bus: service not routable: %s", e.Service)
}

// ErrNotAcknowledged is returned when a service replies without
// acknowledging the request.
var ErrNotAcknowledged = errors.New("bus: request not acknowledged")

// ErrNoTransport is reported by Load when a route names an unregistered
// strategy.
type ErrNoTransport struct {
	Service  string
	Strategy string
}

func (e *ErrNoTransport) Error() string {
	return fmt.Sprintf("bus: no transport %q (service %s)", e.Strategy, e.Service)
}

// ErrFactoryFailed is reported by Load when a transport cannot build a
// handler.
type ErrFactoryFailed struct {
	Service  string
	Strategy string
	Endpoint string
	Cause    error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("bus: transport %q failed for service %s (endpoint %s): %v",
		e.Strategy, e.Service, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
