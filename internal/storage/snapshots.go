package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

// ErrChecksumMismatch means a stored model snapshot was modified after it was saved.
var ErrChecksumMismatch = errors.New("model snapshot checksum mismatch")

// ModelSnapshot describes one persisted optimizer state.
type ModelSnapshot struct {
	Version     int64     `json:"version"`
	SavedAt     time.Time `json:"saved_at"`
	SampleCount int       `json:"sample_count"`
	Accuracy    float64   `json:"accuracy"`
	Checksum    string    `json:"checksum"`
}

// SaveModelState appends state as a new snapshot version.
func (s *SQLiteStore) SaveModelState(ctx context.Context, state domain.ModelState) (ModelSnapshot, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return ModelSnapshot{}, fmt.Errorf("marshal model state: %w", err)
	}
	sum := sha256.Sum256(raw)
	meta := ModelSnapshot{
		SavedAt:     time.Now().UTC(),
		SampleCount: len(state.TrainingData),
		Accuracy:    state.Accuracy,
		Checksum:    hex.EncodeToString(sum[:]),
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO model_snapshots (saved_at, sample_count, accuracy, checksum, state_json)
VALUES (?, ?, ?, ?, ?)`,
		formatTime(meta.SavedAt), meta.SampleCount, meta.Accuracy, meta.Checksum, string(raw),
	)
	if err != nil {
		return ModelSnapshot{}, fmt.Errorf("save model state: %w", err)
	}
	if meta.Version, err = res.LastInsertId(); err != nil {
		return ModelSnapshot{}, fmt.Errorf("save model state: %w", err)
	}
	return meta, nil
}

// LatestModelState loads the newest snapshot and verifies its checksum.
func (s *SQLiteStore) LatestModelState(ctx context.Context) (domain.ModelState, ModelSnapshot, error) {
	var (
		meta    ModelSnapshot
		savedAt string
		raw     string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT version, saved_at, sample_count, accuracy, checksum, state_json
FROM model_snapshots ORDER BY version DESC LIMIT 1`,
	).Scan(&meta.Version, &savedAt, &meta.SampleCount, &meta.Accuracy, &meta.Checksum, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ModelState{}, ModelSnapshot{}, ErrNotFound
	}
	if err != nil {
		return domain.ModelState{}, ModelSnapshot{}, fmt.Errorf("load model state: %w", err)
	}
	if meta.SavedAt, err = parseTime(savedAt); err != nil {
		return domain.ModelState{}, ModelSnapshot{}, fmt.Errorf("load model state: %w", err)
	}

	sum := sha256.Sum256([]byte(raw))
	if got := hex.EncodeToString(sum[:]); got != meta.Checksum {
		return domain.ModelState{}, meta, fmt.Errorf("%w: version %d", ErrChecksumMismatch, meta.Version)
	}

	var state domain.ModelState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.ModelState{}, meta, fmt.Errorf("unmarshal model state: %w", err)
	}
	return state, meta, nil
}

// PruneModelSnapshots keeps only the newest keep versions.
func (s *SQLiteStore) PruneModelSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM model_snapshots
WHERE version NOT IN (SELECT version FROM model_snapshots ORDER BY version DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune model snapshots: %w", err)
	}
	return res.RowsAffected()
}
