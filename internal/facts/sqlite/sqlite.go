// Package sqlite implements the facts sources against a local SQLite file
// (standalone mode). Schema mirrors the Postgres backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/chorus/internal/facts"
)

// OpenDB opens (and if needed creates) the standalone facts database.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	auto_ai_responses INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS group_members (
	group_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	member_type TEXT NOT NULL DEFAULT 'agent',
	is_active INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (group_id, agent_id)
);
CREATE TABLE IF NOT EXISTS relations (
	subject_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	target_type TEXT NOT NULL DEFAULT 'user',
	trust REAL NOT NULL DEFAULT 0.5,
	affinity REAL NOT NULL DEFAULT 0.5,
	respect REAL NOT NULL DEFAULT 0.5,
	stage TEXT NOT NULL DEFAULT 'stranger',
	PRIMARY KEY (subject_id, target_id, target_type)
);
CREATE TABLE IF NOT EXISTS bonds (
	agent_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	emotional_resonance REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	PRIMARY KEY (agent_id, user_id)
);
CREATE TABLE IF NOT EXISTS agent_personas (
	agent_id TEXT PRIMARY KEY,
	extraversion REAL NOT NULL DEFAULT 50
);
CREATE TABLE IF NOT EXISTS agent_presence (
	agent_id TEXT PRIMARY KEY,
	available INTEGER NOT NULL DEFAULT 1,
	reason TEXT,
	spaced_until TIMESTAMP
);
CREATE TABLE IF NOT EXISTS group_messages (
	id TEXT PRIMARY KEY,
	group_id TEXT NOT NULL,
	author_type TEXT NOT NULL,
	agent_id TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_group_messages_recent
	ON group_messages (group_id, agent_id, created_at);
`

// Store implements every facts source against one SQLite database.
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
		 WHERE subject_id = ? AND target_id = ? AND target_type = 'user'`,
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
		`SELECT emotional_resonance, status FROM bonds WHERE agent_id = ? AND user_id = ?`,
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
		`SELECT extraversion FROM agent_personas WHERE agent_id = ?`,
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

func (s *Store) CheckAvailability(ctx context.Context, agentID string, stage facts.Stage) (facts.Availability, error) {
	var (
		available   bool
		reason      sql.NullString
		spacedUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT available, reason, spaced_until FROM agent_presence WHERE agent_id = ?`,
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
		`UPDATE agent_presence SET spaced_until = ? WHERE agent_id = ?`,
		time.Now().Add(10*time.Minute), agentID,
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
		 WHERE group_id = ? AND agent_id = ? AND author_type = 'agent' AND created_at > ?`,
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
		`SELECT status, auto_ai_responses FROM groups WHERE id = ?`,
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
		 WHERE m.group_id = ? AND m.member_type = 'agent' AND m.is_active = 1`,
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
