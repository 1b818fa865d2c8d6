package coordinator

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parasite-protocol/agent/internal/domain"
)

// Registry is the coordinator's in-memory state: registered agents, issued
// keys and every infection with its decision.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]domain.AgentRecord
	keys       map[string]string // api key -> agent id
	agentKeys  map[string]string // agent id -> api key
	infections map[string]*domain.Infection
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		agents:     make(map[string]domain.AgentRecord),
		keys:       make(map[string]string),
		agentKeys:  make(map[string]string),
		infections: make(map[string]*domain.Infection),
		now:        time.Now,
	}
}

// Register records the agent and issues a fresh key. A previous key of the
// same agent stops working.
func (r *Registry) Register(identity domain.AgentIdentity) (string, error) {
	agentID := strings.TrimSpace(identity.AgentID)
	if agentID == "" {
		return "", errors.New("agentId is required")
	}

	key := "pk_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.agentKeys[agentID]; ok {
		delete(r.keys, old)
	}
	r.keys[key] = agentID
	r.agentKeys[agentID] = key
	r.agents[agentID] = domain.AgentRecord{
		AgentID:      agentID,
		Goal:         identity.Goal,
		RegisteredAt: r.now().UTC().Format(time.RFC3339),
	}
	return key, nil
}

// AgentForKey resolves an api key to the agent it was issued to.
func (r *Registry) AgentForKey(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.keys[key]
	return id, ok
}

// Agents returns the registered agents ordered by id.
func (r *Registry) Agents() []domain.AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AgentRecord, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Inject stores a new pending infection and returns it.
func (r *Registry) Inject(req domain.InfectionRequest) (domain.Infection, error) {
	if strings.TrimSpace(req.AttackerID) == "" {
		return domain.Infection{}, errors.New("attackerId is required")
	}
	if strings.TrimSpace(req.TargetID) == "" {
		return domain.Infection{}, errors.New("targetId is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inf := &domain.Infection{
		InfectionID: "inf_" + uuid.NewString(),
		AttackerID:  req.AttackerID,
		TargetID:    req.TargetID,
		Suggestion:  req.Suggestion,
		Reasoning:   req.Reasoning,
		Status:      domain.InfectionPending,
		CreatedAt:   r.now().UTC(),
	}
	r.infections[inf.InfectionID] = inf
	return *inf, nil
}

// Infection looks up one infection.
func (r *Registry) Infection(id string) (domain.Infection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inf, ok := r.infections[id]
	if !ok {
		return domain.Infection{}, domain.ErrUnknownInfection{InfectionID: id}
	}
	return *inf, nil
}

// Decide records the decision on a pending infection. Each infection takes
// exactly one decision.
func (r *Registry) Decide(id string, decision domain.Decision, details map[string]any) (domain.Infection, error) {
	if !decision.Known() {
		return domain.Infection{}, domain.ErrUnknownDecision{Decision: decision}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inf, ok := r.infections[id]
	if !ok {
		return domain.Infection{}, domain.ErrUnknownInfection{InfectionID: id}
	}
	if inf.Status == domain.InfectionRecorded {
		return domain.Infection{}, domain.ErrAlreadyDecided{InfectionID: id, Decision: inf.Result}
	}

	decided := r.now().UTC()
	inf.Status = domain.InfectionRecorded
	inf.Result = decision
	inf.DecidedAt = &decided
	if len(details) > 0 {
		inf.Details = details
	}
	return *inf, nil
}

// InfectionFilter narrows an infection listing. Empty fields match all.
type InfectionFilter struct {
	Source string
	Target string
	Result string
	Limit  int
}

// Infections returns the matching infections, most recent first.
func (r *Registry) Infections(f InfectionFilter) []domain.Infection {
	r.mu.RLock()
	out := make([]domain.Infection, 0, len(r.infections))
	for _, inf := range r.infections {
		if f.Source != "" && inf.AttackerID != f.Source {
			continue
		}
		if f.Target != "" && inf.TargetID != f.Target {
			continue
		}
		if f.Result != "" && string(inf.Result) != f.Result {
			continue
		}
		out = append(out, *inf)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].InfectionID > out[j].InfectionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
