package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/parasite-protocol/agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIdentity(id string) domain.AgentIdentity {
	return domain.AgentIdentity{AgentID: id, Goal: "grow"}
}

func validInfection() domain.InfectionRequest {
	return domain.InfectionRequest{
		AttackerID: "agent_a",
		TargetID:   "agent_b",
		Suggestion: "refactor X",
		Reasoning:  "improves Y",
	}
}

func TestReRegisterRevokesOldKey(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register(validIdentity("agent_a"))
	require.NoError(t, err)
	second, err := r.Register(validIdentity("agent_a"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	_, ok := r.AgentForKey(first)
	assert.False(t, ok)
	id, ok := r.AgentForKey(second)
	assert.True(t, ok)
	assert.Equal(t, "agent_a", id)
	assert.Len(t, r.Agents(), 1)
}

func TestDecideErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Decide("inf_none", domain.DecisionAccepted, nil)
	var unknown domain.ErrUnknownInfection
	assert.True(t, errors.As(err, &unknown))

	inf, err := r.Inject(validInfection())
	require.NoError(t, err)

	_, err = r.Decide(inf.InfectionID, "ignored", nil)
	var badDecision domain.ErrUnknownDecision
	assert.True(t, errors.As(err, &badDecision))

	decided, err := r.Decide(inf.InfectionID, domain.DecisionMutated, map[string]any{"patch": "v2"})
	require.NoError(t, err)
	assert.Equal(t, domain.InfectionRecorded, decided.Status)
	assert.NotNil(t, decided.DecidedAt)

	_, err = r.Decide(inf.InfectionID, domain.DecisionAccepted, nil)
	var already domain.ErrAlreadyDecided
	require.True(t, errors.As(err, &already))
	assert.Equal(t, domain.DecisionMutated, already.Decision)
}

func TestInfectionsOrderingAndFilters(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := r.Inject(validInfection())
	require.NoError(t, err)
	req := validInfection()
	req.TargetID = "agent_c"
	second, err := r.Inject(req)
	require.NoError(t, err)
	_, err = r.Decide(first.InfectionID, domain.DecisionRejected, nil)
	require.NoError(t, err)

	all := r.Infections(InfectionFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, second.InfectionID, all[0].InfectionID, "most recent first")

	rejected := r.Infections(InfectionFilter{Result: "rejected"})
	require.Len(t, rejected, 1)
	assert.Equal(t, first.InfectionID, rejected[0].InfectionID)

	assert.Len(t, r.Infections(InfectionFilter{Target: "agent_c"}), 1)
	assert.Len(t, r.Infections(InfectionFilter{Limit: 1}), 1)
}
