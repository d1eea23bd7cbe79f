// Package errs provides the error types the ledger API uses to shape
// failure responses.
package errs

import "errors"

// Response is the form of every failure response the ledger API returns.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted carries an error through the request pipeline together with the
// HTTP status it should produce.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps the provided error with an HTTP status code. Handlers
// use this for expected failures such as a rejected operation, whose
// message is safe to return to the client.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the message of the
// wrapped error, which is also what shows up in the service logs.
func (re *Trusted) Error() string {
	return re.Err.Error()
}

// IsTrusted reports whether a Trusted error exists in the chain.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns the Trusted error in the chain, or nil.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}
