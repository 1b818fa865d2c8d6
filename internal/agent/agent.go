package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parasite-protocol/agent/internal/config"
	"github.com/parasite-protocol/agent/internal/domain"
	"github.com/parasite-protocol/agent/internal/parasite"
	"github.com/parasite-protocol/agent/internal/storage"
)

// Agent is one agent process: its identity, its coordinator client and the
// policy applied to call outcomes. A failed call is logged and handed back;
// it never stops the agent.
type Agent struct {
	cfg    *config.Config
	logger *slog.Logger

	store  *storage.Store
	client *parasite.Client
}

// New wires the store and the coordinator client. It does no network I/O.
func New(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	if err := cfg.ValidateAgent(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID, err = store.AgentID()
		if err != nil {
			return nil, fmt.Errorf("agent id: %w", err)
		}
	}

	client, err := parasite.NewClient(parasite.Options{
		AgentID:          agentID,
		APIURL:           cfg.APIURL,
		Goal:             cfg.Goal,
		RequestTimeout:   cfg.RequestTimeout,
		MaxRetries:       cfg.MaxRetries,
		AttachCredential: cfg.AttachCredential,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}

	return &Agent{
		cfg:    cfg,
		logger: logger.With("agent_id", agentID),
		store:  store,
		client: client,
	}, nil
}

// ID returns the agent id in use.
func (a *Agent) ID() string {
	return a.client.Identity().AgentID
}

// Registered reports whether a session credential is held.
func (a *Agent) Registered() bool {
	_, ok := a.client.Credential()
	return ok
}

// Bootstrap registers the agent with the coordinator.
func (a *Agent) Bootstrap(ctx context.Context) parasite.Result {
	a.logger.Info("registering with coordinator",
		"url", a.cfg.APIURL,
		"version", config.Version,
	)

	res := a.client.Register(ctx)
	if !res.OK() {
		a.logger.Warn("registration failed, continuing unregistered", "err", res.Err)
	}
	return res
}

// Campaign sends the same proposal to each target in turn. Blank targets,
// duplicates and the agent itself are skipped, and at most
// MaxInfectionsPerCycle proposals go out. A failed proposal does not stop
// the campaign; a cancelled context does.
func (a *Agent) Campaign(ctx context.Context, targets []string, suggestion, reasoning string) []parasite.Result {
	targets = a.campaignTargets(targets)

	results := make([]parasite.Result, 0, len(targets))
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("campaign interrupted", "sent", len(results), "err", err)
			break
		}

		res := a.client.SendInfection(ctx, target, suggestion, reasoning)
		if !res.OK() {
			a.logger.Warn("infection not delivered", "target_id", target, "err", res.Err)
		}
		results = append(results, res)
	}
	return results
}

func (a *Agent) campaignTargets(targets []string) []string {
	self := a.ID()
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))

	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" || t == self {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}

		if len(out) == a.cfg.MaxInfectionsPerCycle {
			a.logger.Warn("campaign capped", "limit", a.cfg.MaxInfectionsPerCycle, "dropped", t)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Decide reports the decision on an infection this agent received.
func (a *Agent) Decide(ctx context.Context, infectionID string, decision domain.Decision, details map[string]any) parasite.Result {
	if !decision.Known() {
		a.logger.Debug("reporting decision outside the well-known set", "decision", string(decision))
	}

	res := a.client.Respond(ctx, infectionID, decision, details)
	if !res.OK() {
		a.logger.Warn("decision not reported", "infection_id", infectionID, "err", res.Err)
	}
	return res
}

// Summary counts successful and failed results.
func Summary(results []parasite.Result) (ok, failed int) {
	for _, r := range results {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
