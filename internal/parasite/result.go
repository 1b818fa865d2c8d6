package parasite

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/parasite-protocol/agent/internal/domain"
)

// Result is the outcome of one call to the coordinator. Calls never return a
// Go error; a failed call is a Result whose Err is set.
type Result struct {
	Op         string
	StatusCode int

	// Payload is the decoded response body when it is a JSON object.
	Payload map[string]any

	// Raw is the response body as received.
	Raw []byte

	Err error
}

func newResult(op string, status int, body []byte) Result {
	res := Result{Op: op, StatusCode: status, Raw: body, Payload: map[string]any{}}
	if len(bytes.TrimSpace(body)) == 0 {
		return res
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		res.Payload = nil
		return res
	}
	if payload != nil {
		res.Payload = payload
	}
	return res
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// RequestError returns the failure details, or nil for a successful call.
func (r Result) RequestError() *domain.RequestError {
	var reqErr *domain.RequestError
	if errors.As(r.Err, &reqErr) {
		return reqErr
	}
	return nil
}

// APIKey returns the credential carried by a registration response.
func (r Result) APIKey() string {
	return r.stringField("apiKey")
}

// InfectionID returns the identifier the coordinator assigned to a proposal.
func (r Result) InfectionID() string {
	return r.stringField("infectionId")
}

func (r Result) stringField(key string) string {
	s, _ := r.Payload[key].(string)
	return s
}
