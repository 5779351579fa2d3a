package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/territories/internal/game"
)

const currentStateID = "current"

// DocStore keeps the state as a single JSONB row in the game_state table.
// The table comes from the migrations package.
type DocStore struct {
	db *sql.DB
}

func NewDocStore(db *sql.DB) *DocStore {
	return &DocStore{db: db}
}

func (s *DocStore) Load(ctx context.Context) (*game.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM game_state WHERE id = ?`, currentStateID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}
	var st game.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return &st, nil
}

func (s *DocStore) Save(ctx context.Context, st *game.State) error {
	data, err := json.Marshal(st.WithoutGeometry())
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO game_state (id, saved_at, data) VALUES (?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at, data = excluded.data`,
		currentStateID, time.Now().UnixMilli(), string(data),
	)
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

func (s *DocStore) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
