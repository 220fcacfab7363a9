package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
)

// UpsertCommissionLevel inserts or replaces one commission level.
func (s *SQLiteStore) UpsertCommissionLevel(ctx context.Context, level models.CommissionLevel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commission_levels (level_number, commission_percentage, active)
		 VALUES (?, ?, ?)
		 ON CONFLICT(level_number) DO UPDATE SET
		     commission_percentage = excluded.commission_percentage,
		     active = excluded.active`,
		level.LevelNumber, level.CommissionPercentage, boolToInt(level.Active),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert commission level: %w", err)
	}

	return nil
}

// GetCommissionLevel retrieves one level regardless of its active flag.
func (s *SQLiteStore) GetCommissionLevel(ctx context.Context, levelNumber int) (*models.CommissionLevel, error) {
	level := &models.CommissionLevel{}
	err := s.db.QueryRowContext(ctx,
		"SELECT level_number, commission_percentage, active FROM commission_levels WHERE level_number = ?",
		levelNumber,
	).Scan(&level.LevelNumber, &level.CommissionPercentage, &level.Active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("commission level %d: %w", levelNumber, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commission level: %w", err)
	}

	return level, nil
}

// ListCommissionLevels returns levels ordered by level number.
func (s *SQLiteStore) ListCommissionLevels(ctx context.Context, activeOnly bool) ([]models.CommissionLevel, error) {
	query := "SELECT level_number, commission_percentage, active FROM commission_levels"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY level_number"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list commission levels: %w", err)
	}
	defer rows.Close()

	var levels []models.CommissionLevel
	for rows.Next() {
		var level models.CommissionLevel
		if err := rows.Scan(&level.LevelNumber, &level.CommissionPercentage, &level.Active); err != nil {
			return nil, fmt.Errorf("failed to scan commission level: %w", err)
		}
		levels = append(levels, level)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commission levels: %w", err)
	}

	return levels, nil
}
