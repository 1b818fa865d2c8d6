package domain

import "time"

// Decision is the outcome a target agent reports for a proposal. The
// vocabulary belongs to the coordinator; the constants below are the values
// it is known to accept.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
	DecisionMutated  Decision = "mutated"
)

// Known reports whether d is one of the well-known decision values.
func (d Decision) Known() bool {
	switch d {
	case DecisionAccepted, DecisionRejected, DecisionMutated:
		return true
	}
	return false
}

// InfectionRequest is a proposal one agent sends targeting another.
type InfectionRequest struct {
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId"`
	Suggestion string `json:"suggestion"`
	Reasoning  string `json:"reasoning"`
}

// InfectionResponse is the part of the coordinator reply the client reads.
type InfectionResponse struct {
	InfectionID string `json:"infectionId"`
	Status      string `json:"status,omitempty"`
}

// InfectionStatus is the lifecycle state of a proposal on the coordinator.
type InfectionStatus string

const (
	InfectionPending  InfectionStatus = "pending"
	InfectionRecorded InfectionStatus = "recorded"
)

// Infection is a proposal as stored by the coordinator.
type Infection struct {
	InfectionID string          `json:"infectionId"`
	AttackerID  string          `json:"attackerId"`
	TargetID    string          `json:"targetId"`
	Suggestion  string          `json:"suggestion"`
	Reasoning   string          `json:"reasoning"`
	Status      InfectionStatus `json:"status"`
	Result      Decision        `json:"result,omitempty"`
	Details     map[string]any  `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	DecidedAt   *time.Time      `json:"decidedAt,omitempty"`
}

// NewRespondBody builds the body of a decision report: the reference and the
// decision, with details spread into the top level. Details are applied last
// so a caller can override any field.
func NewRespondBody(infectionID string, decision Decision, details map[string]any) map[string]any {
	body := make(map[string]any, len(details)+2)
	body["infectionId"] = infectionID
	body["decision"] = string(decision)
	for k, v := range details {
		body[k] = v
	}
	return body
}
