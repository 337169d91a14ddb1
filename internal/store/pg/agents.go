package pg

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type AgentStore struct {
	db *sqlx.DB

	mu       sync.Mutex
	celCache map[string]cel.Program
}

func NewAgentStore(db *sqlx.DB) *AgentStore {
	return &AgentStore{db: db, celCache: make(map[string]cel.Program)}
}

type agentRow struct {
	ID        uuid.UUID  `db:"id"`
	TenantID  uuid.UUID  `db:"tenant_id"`
	UserID    *string    `db:"user_id"`
	Status    string     `db:"status"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func (r agentRow) toStore() *store.Agent {
	return &store.Agent{
		BaseModel: store.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		TenantID:  r.TenantID,
		UserID:    r.UserID,
		Status:    store.AgentStatus(r.Status),
	}
}

func (s *AgentStore) Get(ctx context.Context, agentID uuid.UUID) (*store.Agent, error) {
	var r agentRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, tenant_id, user_id, status, created_at, updated_at FROM agents WHERE id = $1`, agentID)
	if err != nil {
		if err == sqlNoRows {
			return nil, store.ErrNotFound("agent not found", err)
		}
		return nil, store.ErrInternal("agent lookup failed", err)
	}
	return r.toStore(), nil
}

func (s *AgentStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*store.Agent, error) {
	var rows []agentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, tenant_id, user_id, status, created_at, updated_at FROM agents WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, store.ErrInternal("agent list failed", err)
	}
	out := make([]*store.Agent, len(rows))
	for i, r := range rows {
		out[i] = r.toStore()
	}
	return out, nil
}

type integrationRow struct {
	ID        uuid.UUID `db:"id"`
	AgentID   uuid.UUID `db:"agent_id"`
	Channel   string    `db:"channel"`
	Enabled   bool      `db:"enabled"`
	Status    string    `db:"status"`
	Config    []byte    `db:"config"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *AgentStore) Integration(ctx context.Context, agentID uuid.UUID, channel store.Channel) (*store.AgentIntegration, error) {
	var r integrationRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, agent_id, channel, enabled, status, config, created_at, updated_at
		 FROM agent_integrations WHERE agent_id = $1 AND channel = $2`, agentID, string(channel))
	if err != nil {
		if err == sqlNoRows {
			return nil, store.ErrNotFound("integration not found", err)
		}
		return nil, store.ErrInternal("integration lookup failed", err)
	}
	cfg := store.IntegrationConfig{}
	if len(r.Config) > 0 {
		_ = json.Unmarshal(r.Config, &cfg)
	}
	integ := &store.AgentIntegration{
		BaseModel: store.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		AgentID:   r.AgentID,
		Channel:   store.Channel(r.Channel),
		Enabled:   r.Enabled,
		Status:    store.IntegrationStatus(r.Status),
		Config:    cfg,
	}
	if !integ.Enabled || integ.Status != store.IntegrationConnected {
		return integ, store.ErrIntegrationDisabled("integration not connected", nil)
	}
	return integ, nil
}

type settingsRow struct {
	AgentID  uuid.UUID `db:"agent_id"`
	Persona  []byte    `db:"persona_config"`
	Advanced []byte    `db:"advanced_config"`
	Schedule []byte    `db:"schedule_config"`
}

func (s *AgentStore) Settings(ctx context.Context, agentID uuid.UUID) (*store.AgentSettings, error) {
	var r settingsRow
	err := s.db.GetContext(ctx, &r,
		`SELECT agent_id, persona_config, advanced_config, schedule_config
		 FROM agent_settings WHERE agent_id = $1`, agentID)
	if err != nil {
		if err == sqlNoRows {
			// No row yet: defaults apply (historyLimit=5, balanced temperature).
			return &store.AgentSettings{AgentID: agentID}, nil
		}
		return nil, store.ErrInternal("agent settings lookup failed", err)
	}
	out := &store.AgentSettings{AgentID: r.AgentID}
	if len(r.Persona) > 0 {
		_ = json.Unmarshal(r.Persona, &out.Persona)
	}
	if len(r.Advanced) > 0 {
		_ = json.Unmarshal(r.Advanced, &out.Advanced)
	}
	if len(r.Schedule) > 0 {
		_ = json.Unmarshal(r.Schedule, &out.Schedule)
	}
	return out, nil
}

// WithinSchedule evaluates every schedule_config.windows[].cel expression
// for truthiness at nowUnix, compiling and caching each program on first use
// (a compiled CEL predicate rather than hand-rolled weekday comparisons).
func (s *AgentStore) WithinSchedule(ctx context.Context, agentID uuid.UUID, nowUnix int64) (bool, error) {
	settings, err := s.Settings(ctx, agentID)
	if err != nil {
		return false, err
	}
	if len(settings.Schedule.Windows) == 0 {
		return true, nil // no schedule configured: always available
	}

	loc := time.UTC
	if settings.Schedule.Timezone != "" {
		if l, err := time.LoadLocation(settings.Schedule.Timezone); err == nil {
			loc = l
		}
	}
	t := time.Unix(nowUnix, 0).In(loc)
	vars := map[string]any{
		"weekday": int64(t.Weekday()),
		"hour":    int64(t.Hour()),
		"minute":  int64(t.Minute()),
	}

	for _, w := range settings.Schedule.Windows {
		prg, err := s.compileWindow(w.CEL)
		if err != nil {
			continue // a malformed window never gates availability
		}
		out, _, err := prg.Eval(vars)
		if err != nil {
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return true, nil
		}
	}
	return false, nil
}

func (s *AgentStore) compileWindow(expr string) (cel.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prg, ok := s.celCache[expr]; ok {
		return prg, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("weekday", cel.IntType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("minute", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	s.celCache[expr] = prg
	return prg, nil
}
