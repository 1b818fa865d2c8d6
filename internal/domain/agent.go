package domain

// AgentIdentity is the stable identity an agent presents to the coordinator.
type AgentIdentity struct {
	AgentID string `json:"agentId"`
	Goal    string `json:"goal"`
}

// RegisterAgentRequest is sent to the coordinator on registration.
type RegisterAgentRequest = AgentIdentity

// RegisterAgentResponse is the part of the registration reply the client
// relies on. The coordinator may return more fields.
type RegisterAgentResponse struct {
	AgentID string `json:"agentId,omitempty"`
	APIKey  string `json:"apiKey"`
}

// AgentRecord is how the coordinator tracks a registered agent.
type AgentRecord struct {
	AgentID      string `json:"agentId"`
	Goal         string `json:"goal"`
	RegisteredAt string `json:"registeredAt"`
}
