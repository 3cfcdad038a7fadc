// Package pg implements the facts sources against Postgres (managed mode).
// All access is read-only except the spaced-response timestamp.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/chorus/internal/facts"
)

// OpenDB opens a Postgres connection pool using the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store implements every facts source against one Postgres pool.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewSources bundles the store into the facts.Sources consumed by the
// orchestrator.
func NewSources(db *sql.DB) facts.Sources {
	s := New(db)
	return facts.Sources{
		Relationships: s,
		Bonds:         s,
		Personalities: s,
		Availability:  s,
		Participation: s,
		Members:       s,
	}
}

func (s *Store) Relationship(ctx context.Context, agentID, userID string) (facts.Relationship, error) {
	var rel facts.Relationship
	err := s.db.QueryRowContext(ctx,
		`SELECT trust, affinity, respect, stage FROM relations
		 WHERE subject_id = $1 AND target_id = $2 AND target_type = 'user'`,
		agentID, userID,
	).Scan(&rel.Trust, &rel.Affinity, &rel.Respect, &rel.Stage)
	if errors.Is(err, sql.ErrNoRows) {
		return facts.Relationship{}, facts.ErrNotFound
	}
	if err != nil {
		return facts.Relationship{}, fmt.Errorf("query relationship: %w", err)
	}
	return rel, nil
}

func (s *Store) Bond(ctx context.Context, agentID, userID string) (facts.Bond, error) {
	var bond facts.Bond
	err := s.db.QueryRowContext(ctx,
		`SELECT emotional_resonance, status FROM bonds
		 WHERE agent_id = $1 AND user_id = $2`,
		agentID, userID,
	).Scan(&bond.EmotionalResonance, &bond.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return facts.Bond{}, facts.ErrNotFound
	}
	if err != nil {
		return facts.Bond{}, fmt.Errorf("query bond: %w", err)
	}
	return bond, nil
}

func (s *Store) Personality(ctx context.Context, agentID string) (facts.Personality, error) {
	var p facts.Personality
	err := s.db.QueryRowContext(ctx,
		`SELECT extraversion FROM agent_personas WHERE agent_id = $1`,
		agentID,
	).Scan(&p.Extraversion)
	if errors.Is(err, sql.ErrNoRows) {
		return facts.Personality{}, facts.ErrNotFound
	}
	if err != nil {
		return facts.Personality{}, fmt.Errorf("query personality: %w", err)
	}
	return p, nil
}

// CheckAvailability reads the presence row the routine system maintains.
// No row means the agent has no schedule: always available.
func (s *Store) CheckAvailability(ctx context.Context, agentID string, stage facts.Stage) (facts.Availability, error) {
	var (
		available   bool
		reason      sql.NullString
		spacedUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT available, reason, spaced_until FROM agent_presence WHERE agent_id = $1`,
		agentID,
	).Scan(&available, &reason, &spacedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return facts.Availability{Available: true}, nil
	}
	if err != nil {
		return facts.Availability{}, fmt.Errorf("query presence: %w", err)
	}

	a := facts.Availability{Available: available, Reason: reason.String}
	if !available && spacedUntil.Valid && time.Now().After(spacedUntil.Time) {
		a.CanRespondSpaced = true
	}
	return a, nil
}

func (s *Store) RecordSpacedResponse(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_presence SET spaced_until = $2 WHERE agent_id = $1`,
		agentID, time.Now().Add(10*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("record spaced response: %w", err)
	}
	return nil
}

func (s *Store) RecentMessageCount(ctx context.Context, groupID, agentID string, window time.Duration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_messages
		 WHERE group_id = $1 AND agent_id = $2 AND author_type = 'agent' AND created_at > $3`,
		groupID, agentID, time.Now().Add(-window),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent messages: %w", err)
	}
	return n, nil
}

func (s *Store) GroupEligible(ctx context.Context, groupID string) (bool, error) {
	var (
		status string
		auto   bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, auto_ai_responses FROM groups WHERE id = $1`,
		groupID,
	).Scan(&status, &auto)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query group: %w", err)
	}
	return status == "ACTIVE" && auto, nil
}

func (s *Store) ListAgents(ctx context.Context, groupID string) ([]facts.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name FROM group_members m
		 JOIN agents a ON a.id = m.agent_id
		 WHERE m.group_id = $1 AND m.member_type = 'agent' AND m.is_active`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var agents []facts.Agent
	for rows.Next() {
		var a facts.Agent
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
