package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

func (d *DB) ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error) {
	userID, err := d.authorize(ctx, ident)
	if err != nil {
		return nil, err
	}

	var statusFilter *string
	if status != nil {
		s := string(*status)
		statusFilter = &s
	}

	rows, err := d.pool.Query(ctx, `
		SELECT s.id::text, s.user_id::text, s.activity_id::text, s.status, s.assigned_at,
			a.id::text, a.title, a.description, a.location, a.start_date, a.end_date, a.category, a.status,
			a.max_volunteers, a.current_volunteers, a.image_url
		FROM volunteer_assignments s
		JOIN volunteer_activities a ON a.id = s.activity_id
		WHERE s.user_id = $1 AND ($2::text IS NULL OR s.status = $2)
		ORDER BY s.assigned_at DESC, s.id
	`, userID, statusFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []model.AssignmentWithActivity
	for rows.Next() {
		var r model.AssignmentWithActivity
		activity, err := scanActivity(rows, &r.ID, &r.UserID, &r.ActivityID, &r.Status, &r.AssignedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		r.Activity = activity
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	return out, nil
}

// InsertAssignment checks for an existing active assignment and inserts the new
// one in a single transaction, holding a row lock on the activity. The partial
// unique index backs the check up.
func (d *DB) InsertAssignment(ctx context.Context, ident model.Identity, activityID string) (*model.Assignment, error) {
	userID, err := d.authorize(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(activityID); err != nil {
		return nil, db.ErrActivityNotFound
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx, `SELECT id::text FROM volunteer_activities WHERE id = $1 FOR UPDATE`, activityID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrActivityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock activity: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM volunteer_assignments
			WHERE user_id = $1 AND activity_id = $2 AND status = 'active'
		)
	`, userID, activityID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing assignment: %w", err)
	}
	if exists {
		return nil, db.ErrDuplicateAssignment
	}

	asg := model.Assignment{UserID: userID, ActivityID: activityID, Status: model.AssignmentActive}
	err = tx.QueryRow(ctx, `
		INSERT INTO volunteer_assignments (user_id, activity_id, status)
		VALUES ($1, $2, 'active')
		RETURNING id::text, assigned_at
	`, userID, activityID).Scan(&asg.ID, &asg.AssignedAt)
	if err != nil {
		if pgErrorCode(err) == "23505" {
			return nil, db.ErrDuplicateAssignment
		}
		return nil, fmt.Errorf("failed to insert assignment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE volunteer_activities SET current_volunteers = current_volunteers + 1 WHERE id = $1
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to update volunteer count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if pgErrorCode(err) == "23505" {
			return nil, db.ErrDuplicateAssignment
		}
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}

	d.logger.Debug("Assignment created",
		zap.String("assignment_id", asg.ID),
		zap.String("activity_id", activityID))
	return &asg, nil
}

// UpdateAssignmentStatus changes the status of one of the identity's assignments.
// Leaving the active state releases the activity spot.
func (d *DB) UpdateAssignmentStatus(ctx context.Context, ident model.Identity, assignmentID string, status model.AssignmentStatus) error {
	userID, err := d.authorize(ctx, ident)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(assignmentID); err != nil {
		return db.ErrNotFound
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var activityID string
	var previous model.AssignmentStatus
	err = tx.QueryRow(ctx, `
		SELECT activity_id::text, status FROM volunteer_assignments
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, assignmentID, userID).Scan(&activityID, &previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock assignment: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE volunteer_assignments SET status = $2 WHERE id = $1`, assignmentID, string(status)); err != nil {
		if pgErrorCode(err) == "23505" {
			return db.ErrDuplicateAssignment
		}
		return fmt.Errorf("failed to update assignment: %w", err)
	}

	if previous == model.AssignmentActive && status != model.AssignmentActive {
		_, err = tx.Exec(ctx, `
			UPDATE volunteer_activities SET current_volunteers = GREATEST(current_volunteers - 1, 0) WHERE id = $1
		`, activityID)
		if err != nil {
			return fmt.Errorf("failed to update volunteer count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit assignment update: %w", err)
	}
	return nil
}
