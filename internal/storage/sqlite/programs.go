package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
)

const programColumns = `id, title, business_threshold, team_size_threshold, direct_referrals_threshold,
	duration_days, reward_amount, reward_percentage, start_date, end_date, active`

// UpsertRewardProgram inserts a program or replaces the stored definition.
// Existing user rewards keep the target they were assigned with.
func (s *SQLiteStore) UpsertRewardProgram(ctx context.Context, p *models.RewardProgram) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_programs (`+programColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     title = excluded.title,
		     business_threshold = excluded.business_threshold,
		     team_size_threshold = excluded.team_size_threshold,
		     direct_referrals_threshold = excluded.direct_referrals_threshold,
		     duration_days = excluded.duration_days,
		     reward_amount = excluded.reward_amount,
		     reward_percentage = excluded.reward_percentage,
		     start_date = excluded.start_date,
		     end_date = excluded.end_date,
		     active = excluded.active`,
		p.ID, p.Title, p.BusinessThreshold, p.TeamSizeThreshold, p.DirectReferralsThreshold,
		p.DurationDays, p.RewardAmount, p.RewardPercentage,
		toUnix(p.StartDate), toUnix(p.EndDate), boolToInt(p.Active),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reward program: %w", err)
	}

	return nil
}

// GetRewardProgram retrieves a program by ID.
func (s *SQLiteStore) GetRewardProgram(ctx context.Context, id string) (*models.RewardProgram, error) {
	p, err := scanProgram(s.db.QueryRowContext(ctx,
		"SELECT "+programColumns+" FROM reward_programs WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reward program %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward program: %w", err)
	}

	return p, nil
}

// ListRewardPrograms returns programs ordered by ID.
func (s *SQLiteStore) ListRewardPrograms(ctx context.Context, activeOnly bool) ([]*models.RewardProgram, error) {
	query := "SELECT " + programColumns + " FROM reward_programs"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward programs: %w", err)
	}
	defer rows.Close()

	var programs []*models.RewardProgram
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward program: %w", err)
		}
		programs = append(programs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward programs: %w", err)
	}

	return programs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProgram(row rowScanner) (*models.RewardProgram, error) {
	p := &models.RewardProgram{}
	var start, end int64
	if err := row.Scan(&p.ID, &p.Title, &p.BusinessThreshold, &p.TeamSizeThreshold, &p.DirectReferralsThreshold,
		&p.DurationDays, &p.RewardAmount, &p.RewardPercentage, &start, &end, &p.Active); err != nil {
		return nil, err
	}
	p.StartDate = fromUnix(start)
	p.EndDate = fromUnix(end)
	return p, nil
}
