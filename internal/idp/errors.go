package idp

import (
	"errors"
	"fmt"
)

// ErrDomainMismatch is returned when the identity is outside the configured
// hosted domain. The provider call itself succeeded; the user is simply not
// allowed in.
var ErrDomainMismatch = errors.New("identity outside hosted domain")

// ExchangeError means the token endpoint rejected the authorization code.
// Description carries the provider's error_description when one was given.
type ExchangeError struct {
	Description string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange rejected: %s", e.Description)
}

// TransportError means the provider could not be reached at the network
// layer. It wraps the underlying client error.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UserInfoError means the user-info endpoint answered with a non-200 status,
// usually because the access token is stale or revoked.
type UserInfoError struct {
	Status int
}

func (e *UserInfoError) Error() string {
	return fmt.Sprintf("user info fetch failed: status %d", e.Status)
}
