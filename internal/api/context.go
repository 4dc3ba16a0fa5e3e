package api

import "context"

// AgentIdentity is the authenticated caller, resolved from its API key
// by the auth middleware.
type AgentIdentity struct {
	ID   int64
	Name string
}

type contextKey int

const agentKey contextKey = iota

// WithAgent stores the authenticated agent on the request context.
func WithAgent(ctx context.Context, agent AgentIdentity) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

// AgentFrom returns the authenticated agent, if any.
func AgentFrom(ctx context.Context) (AgentIdentity, bool) {
	agent, ok := ctx.Value(agentKey).(AgentIdentity)
	return agent, ok
}
