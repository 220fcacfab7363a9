package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
)

// maxUplineLevels bounds ListUpline when the caller asks for the whole chain,
// so a sponsor loop in stored data cannot recurse forever.
const maxUplineLevels = 1024

// UpsertMembers inserts new members and updates existing ones in one transaction.
// New members are appended to the join order; existing members keep their place.
func (s *SQLiteStore) UpsertMembers(ctx context.Context, members []models.ReferralEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range members {
		var parent interface{}
		if m.ParentID != "" {
			parent = m.ParentID
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO members (user_id, parent_id, personal_business, active, joined_seq)
			 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(joined_seq), 0) + 1 FROM members))
			 ON CONFLICT(user_id) DO UPDATE SET
			     parent_id = excluded.parent_id,
			     personal_business = excluded.personal_business,
			     active = excluded.active`,
			m.UserID, parent, m.PersonalBusiness, boolToInt(m.Active),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert member %s: %w", m.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetMember retrieves a member by ID.
func (s *SQLiteStore) GetMember(ctx context.Context, userID string) (*models.ReferralEdge, error) {
	m := &models.ReferralEdge{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, COALESCE(parent_id, ''), personal_business, active
		 FROM members WHERE user_id = ?`,
		userID,
	).Scan(&m.UserID, &m.ParentID, &m.PersonalBusiness, &m.Active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return m, nil
}

// ListDownline walks parent links downward from rootID with a recursive CTE.
// UNION (not UNION ALL) drops already-seen ids, which ends the recursion on loops.
func (s *SQLiteStore) ListDownline(ctx context.Context, rootID string) ([]models.ReferralEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH RECURSIVE downline(user_id) AS (
		     SELECT ?
		     UNION
		     SELECT m.user_id FROM members m JOIN downline d ON m.parent_id = d.user_id
		 )
		 SELECT m.user_id, COALESCE(m.parent_id, ''), m.personal_business, m.active
		 FROM members m JOIN downline d ON m.user_id = d.user_id
		 ORDER BY m.joined_seq`,
		rootID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list downline: %w", err)
	}
	defer rows.Close()

	var edges []models.ReferralEdge
	for rows.Next() {
		var e models.ReferralEdge
		if err := rows.Scan(&e.UserID, &e.ParentID, &e.PersonalBusiness, &e.Active); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}

	return edges, nil
}

// ListUpline walks parent links upward from userID, nearest sponsor first.
func (s *SQLiteStore) ListUpline(ctx context.Context, userID string, maxLevels int) ([]string, error) {
	if maxLevels <= 0 || maxLevels > maxUplineLevels {
		maxLevels = maxUplineLevels
	}

	rows, err := s.db.QueryContext(ctx,
		`WITH RECURSIVE upline(user_id, parent_id, lvl) AS (
		     SELECT user_id, parent_id, 0 FROM members WHERE user_id = ?
		     UNION ALL
		     SELECT m.user_id, m.parent_id, u.lvl + 1
		     FROM members m JOIN upline u ON m.user_id = u.parent_id
		     WHERE u.lvl < ?
		 )
		 SELECT user_id FROM upline WHERE lvl > 0 ORDER BY lvl`,
		userID, maxLevels,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list upline: %w", err)
	}
	defer rows.Close()

	upline := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan upline member: %w", err)
		}
		upline = append(upline, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upline: %w", err)
	}

	return upline, nil
}

// ListMemberIDs returns every member ID in join order.
func (s *SQLiteStore) ListMemberIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM members ORDER BY joined_seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}

	return ids, nil
}
