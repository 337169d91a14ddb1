package store

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// TenantIDKey is the context key for the tenant UUID. Repository methods
	// take tenant IDs as explicit arguments and do not read this key.
	TenantIDKey contextKey = "convoy_tenant_id"
	// AgentIDKey is the context key for the acting agent UUID (AI or human).
	AgentIDKey contextKey = "convoy_agent_id"
	// ChatIDKey is the context key for the chat UUID currently being processed.
	ChatIDKey contextKey = "convoy_chat_id"
	// CustomerIDKey is the context key for the customer UUID.
	CustomerIDKey contextKey = "convoy_customer_id"
)

// WithTenantID returns a new context carrying the tenant UUID.
func WithTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}

// TenantIDFromContext extracts the tenant UUID. Returns uuid.Nil if not set.
func TenantIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(TenantIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithAgentID returns a new context carrying the acting agent UUID.
func WithAgentID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, AgentIDKey, id)
}

// AgentIDFromContext extracts the agent UUID. Returns uuid.Nil if not set.
func AgentIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(AgentIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithChatID returns a new context carrying the chat UUID.
func WithChatID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ChatIDKey, id)
}

// ChatIDFromContext extracts the chat UUID. Returns uuid.Nil if not set.
func ChatIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(ChatIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithCustomerID returns a new context carrying the customer UUID.
func WithCustomerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, CustomerIDKey, id)
}

// CustomerIDFromContext extracts the customer UUID. Returns uuid.Nil if not set.
func CustomerIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(CustomerIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
