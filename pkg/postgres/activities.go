package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

const activityColumns = `id::text, title, description, location, start_date, end_date, category, status,
	max_volunteers, current_volunteers, image_url`

// scanActivity reads the activityColumns of one row, prefixed by any extra destinations
func scanActivity(row pgx.Row, extra ...any) (model.Activity, error) {
	var a model.Activity
	var image *string
	dest := append(extra,
		&a.ID, &a.Title, &a.Description, &a.Location, &a.StartDate, &a.EndDate, &a.Category, &a.Status,
		&a.MaxVolunteers, &a.CurrentVolunteers, &image)
	if err := row.Scan(dest...); err != nil {
		return model.Activity{}, err
	}
	a.ImageURL = deref(image)
	return a, nil
}

func (d *DB) queryActivities(ctx context.Context, sql string, args ...any) ([]model.Activity, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return activities, nil
}

func (d *DB) ListOpenActivities(ctx context.Context) ([]model.Activity, error) {
	return d.queryActivities(ctx, `
		SELECT `+activityColumns+`
		FROM volunteer_activities
		WHERE status = $1
		ORDER BY start_date ASC, id
	`, string(model.ActivityOpen))
}

func (d *DB) ListActivities(ctx context.Context) ([]model.Activity, error) {
	return d.queryActivities(ctx, `
		SELECT `+activityColumns+`
		FROM volunteer_activities
		ORDER BY start_date ASC, id
	`)
}

// InsertActivities inserts all activities in one batch inside a transaction
func (d *DB) InsertActivities(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range activities {
		status := a.Status
		if status == "" {
			status = model.ActivityOpen
		}
		var image *string
		if a.ImageURL != "" {
			image = &a.ImageURL
		}
		var id *string
		if a.ID != "" {
			id = &a.ID
		}
		batch.Queue(`
			INSERT INTO volunteer_activities
				(id, title, description, location, start_date, end_date, category, status, max_volunteers, current_volunteers, image_url)
			VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, id, a.Title, a.Description, a.Location, a.StartDate.UTC(), a.EndDate, a.Category, string(status),
			a.MaxVolunteers, a.CurrentVolunteers, image)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert activities: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit activities: %w", err)
	}
	return nil
}
