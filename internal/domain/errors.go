package domain

import "fmt"

// RequestError describes a failed call to the coordinator. StatusCode is 0
// when no HTTP response was received. Local is set when the request could
// not even be built, so nothing was sent.
type RequestError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Body       string
	Local      bool
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Method, e.Path, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: %s %s returned %d", e.Op, e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s %s returned %d: %s", e.Op, e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Transport reports whether the request was sent but never got an HTTP
// response.
func (e *RequestError) Transport() bool {
	return e.StatusCode == 0 && !e.Local
}

// Rejected reports whether the coordinator answered with a 4xx status.
func (e *RequestError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type ErrUnknownInfection struct {
	InfectionID string
}

func (e ErrUnknownInfection) Error() string {
	return fmt.Sprintf("unknown infection: %s", e.InfectionID)
}

type ErrAlreadyDecided struct {
	InfectionID string
	Decision    Decision
}

func (e ErrAlreadyDecided) Error() string {
	return fmt.Sprintf("infection %s already decided: %s", e.InfectionID, e.Decision)
}

type ErrUnknownDecision struct {
	Decision Decision
}

func (e ErrUnknownDecision) Error() string {
	return fmt.Sprintf("unknown decision: %s", e.Decision)
}

type ErrConfig struct {
	Field string
	Err   error
}

func (e ErrConfig) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e ErrConfig) Unwrap() error {
	return e.Err
}
