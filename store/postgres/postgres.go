// Package postgres implements the ConvoMesh stores over PostgreSQL using
// pgx. The routing capacity consumption is a single conditional UPDATE, so
// the compare-and-increment happens inside the database and can never
// over-allocate under concurrency.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convomesh/convomesh/core"
)

// Store implements core.ConversationStore, core.RuleStore and
// core.ProcessedEventStore over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Connect opens a pool for the given DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// ClosePool releases the underlying pool.
func (s *Store) ClosePool() { s.pool.Close() }

const conversationColumns = `id, external_conversation_id, external_user_id,
	current_handler, current_handler_name, orchestrator_status,
	conversation_owner, waiting_for_customer, interaction_count,
	created_at, updated_at, closed_at, closed_reason`

func scanConversation(row pgx.Row) (*core.Conversation, error) {
	var (
		conv         core.Conversation
		owner        string
		closedReason *string
	)
	err := row.Scan(
		&conv.ID, &conv.ExternalConversationID, &conv.ExternalUserID,
		&conv.CurrentHandler, &conv.CurrentHandlerName, &conv.OrchestratorStatus,
		&owner, &conv.WaitingForCustomer, &conv.InteractionCount,
		&conv.Created, &conv.Updated, &conv.ClosedAt, &closedReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	conv.Owner = core.Owner(owner)
	if closedReason != nil {
		conv.ClosedReason = core.ClosedReason(*closedReason)
	}
	return &conv, nil
}

// GetByExternalID implements core.ConversationStore.
func (s *Store) GetByExternalID(ctx context.Context, externalConversationID string) (*core.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE external_conversation_id = $1`,
		externalConversationID)
	return scanConversation(row)
}

// Create implements core.ConversationStore.
func (s *Store) Create(ctx context.Context, conv *core.Conversation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (
			id, external_conversation_id, external_user_id,
			current_handler, current_handler_name, orchestrator_status,
			conversation_owner, waiting_for_customer, interaction_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		conv.ID, conv.ExternalConversationID, conv.ExternalUserID,
		conv.CurrentHandler, conv.CurrentHandlerName, string(conv.OrchestratorStatus),
		string(conv.Owner), conv.WaitingForCustomer, conv.InteractionCount,
		conv.Created, conv.Updated)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// UpdateHandler implements core.ConversationStore.
func (s *Store) UpdateHandler(ctx context.Context, id int64, handler, handlerName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET current_handler = $2, current_handler_name = $3, updated_at = now()
		 WHERE id = $1`,
		id, handler, handlerName)
	if err != nil {
		return fmt.Errorf("update conversation handler: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// UpdateOrchestration implements core.ConversationStore.
func (s *Store) UpdateOrchestration(ctx context.Context, id int64, status core.OrchestratorStatus, owner core.Owner, waiting bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET orchestrator_status = $2, conversation_owner = $3,
		     waiting_for_customer = $4, updated_at = now()
		 WHERE id = $1`,
		id, string(status), string(owner), waiting)
	if err != nil {
		return fmt.Errorf("update orchestration state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// UpdateInteractions implements core.ConversationStore.
func (s *Store) UpdateInteractions(ctx context.Context, id int64, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET interaction_count = $2, updated_at = now()
		 WHERE id = $1`,
		id, count)
	if err != nil {
		return fmt.Errorf("update interaction count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Close implements core.ConversationStore.
func (s *Store) Close(ctx context.Context, id int64, reason core.ClosedReason) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET orchestrator_status = $2, conversation_owner = '',
		     waiting_for_customer = false, closed_at = now(),
		     closed_reason = $3, updated_at = now()
		 WHERE id = $1`,
		id, string(core.StatusClosed), string(reason))
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

const ruleColumns = `id, rule_type, target, match_text, auth_filter,
	allocate_count, allocated_count, is_active, expires_at, created_at, updated_at`

func scanRule(row pgx.Row) (*core.RoutingRule, error) {
	var rule core.RoutingRule
	err := row.Scan(
		&rule.ID, &rule.RuleType, &rule.Target, &rule.MatchText, &rule.AuthFilter,
		&rule.AllocateCount, &rule.AllocatedCount, &rule.IsActive, &rule.ExpiresAt,
		&rule.Created, &rule.Updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// GetRule implements core.RuleStore.
func (s *Store) GetRule(ctx context.Context, id int64) (*core.RoutingRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM routing_rules WHERE id = $1`, id)
	return scanRule(row)
}

// PutRule implements core.RuleStore.
func (s *Store) PutRule(ctx context.Context, rule *core.RoutingRule) error {
	if rule.ID == 0 {
		rule.ID = core.NewRowID()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO routing_rules (
			id, rule_type, target, match_text, auth_filter,
			allocate_count, allocated_count, is_active, expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			rule_type = EXCLUDED.rule_type, target = EXCLUDED.target,
			match_text = EXCLUDED.match_text, auth_filter = EXCLUDED.auth_filter,
			allocate_count = EXCLUDED.allocate_count,
			allocated_count = EXCLUDED.allocated_count,
			is_active = EXCLUDED.is_active, expires_at = EXCLUDED.expires_at,
			updated_at = now()`,
		rule.ID, rule.RuleType, rule.Target, rule.MatchText, string(rule.AuthFilter),
		rule.AllocateCount, rule.AllocatedCount, rule.IsActive, rule.ExpiresAt,
		rule.Created, rule.Updated)
	if err != nil {
		return fmt.Errorf("upsert routing rule: %w", err)
	}
	return nil
}

// ListCandidates implements core.RuleStore.
func (s *Store) ListCandidates(ctx context.Context, now time.Time) ([]core.RoutingRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM routing_rules
		 WHERE is_active
		   AND (expires_at IS NULL OR expires_at > $1)
		   AND (allocate_count IS NULL OR allocated_count < allocate_count)
		 ORDER BY id ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list candidate rules: %w", err)
	}
	defer rows.Close()

	var out []core.RoutingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

// ConsumeCapacity implements core.RuleStore. The WHERE clause re-checks
// activity and remaining capacity inside the UPDATE itself; losing the race
// simply affects zero rows.
func (s *Store) ConsumeCapacity(ctx context.Context, ruleID int64) (core.ConsumeResult, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE routing_rules
		 SET allocated_count = allocated_count + 1, updated_at = now()
		 WHERE id = $1
		   AND is_active
		   AND (allocate_count IS NULL OR allocated_count < allocate_count)
		 RETURNING allocated_count, allocate_count`, ruleID)

	var (
		allocated int
		capacity  *int
	)
	if err := row.Scan(&allocated, &capacity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ConsumeResult{Allocated: false}, nil
		}
		return core.ConsumeResult{}, fmt.Errorf("consume rule capacity: %w", err)
	}
	return core.ConsumeResult{
		Allocated:      true,
		AllocatedCount: allocated,
		Exhausted:      capacity != nil && allocated >= *capacity,
	}, nil
}

// Deactivate implements core.RuleStore.
func (s *Store) Deactivate(ctx context.Context, ruleID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE routing_rules SET is_active = false, updated_at = now() WHERE id = $1`,
		ruleID)
	if err != nil {
		return fmt.Errorf("deactivate routing rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// GetProcessed implements core.ProcessedEventStore.
func (s *Store) GetProcessed(ctx context.Context, externalConversationID, ruleType string) (*core.ProcessedEvent, error) {
	var entry core.ProcessedEvent
	err := s.pool.QueryRow(ctx,
		`SELECT external_conversation_id, rule_type, rule_id, processed_at, expires_at
		 FROM routing_processed_events
		 WHERE external_conversation_id = $1 AND rule_type = $2`,
		externalConversationID, ruleType).Scan(
		&entry.ExternalConversationID, &entry.RuleType, &entry.RuleID,
		&entry.ProcessedAt, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// UpsertProcessed implements core.ProcessedEventStore. The ON CONFLICT clause
// rides on the composite uniqueness constraint, giving markProcessed its
// upsert semantics under concurrency.
func (s *Store) UpsertProcessed(ctx context.Context, entry core.ProcessedEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO routing_processed_events (
			external_conversation_id, rule_type, rule_id, processed_at, expires_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_conversation_id, rule_type) DO UPDATE SET
			rule_id = EXCLUDED.rule_id,
			processed_at = EXCLUDED.processed_at,
			expires_at = EXCLUDED.expires_at`,
		entry.ExternalConversationID, entry.RuleType, entry.RuleID,
		entry.ProcessedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert processed event: %w", err)
	}
	return nil
}

// DeleteExpired implements core.ProcessedEventStore.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM routing_processed_events WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired processed events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
