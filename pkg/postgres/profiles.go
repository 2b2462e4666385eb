package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

func (d *DB) GetProfile(ctx context.Context, ident model.Identity) (*model.Profile, error) {
	userID, err := d.authorize(ctx, ident)
	if err != nil {
		return nil, err
	}

	var p model.Profile
	var city, availability, bio, avatar *string
	err = d.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, full_name, email, phone, city, availability, skills, bio, avatar_url
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.UserID, &p.FullName, &p.Email, &p.Phone, &city, &availability, &p.Skills, &bio, &avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	p.City = deref(city)
	p.Availability = model.Availability(deref(availability))
	p.Bio = deref(bio)
	p.AvatarURL = deref(avatar)
	return &p, nil
}

func (d *DB) UpdateProfile(ctx context.Context, ident model.Identity, attrs model.ProfileAttributes) error {
	userID, err := d.authorize(ctx, ident)
	if err != nil {
		return err
	}

	tag, err := d.pool.Exec(ctx, `
		UPDATE profiles
		SET full_name = $2, phone = $3, city = $4, availability = $5, skills = $6, bio = $7, updated_at = NOW()
		WHERE user_id = $1
	`, userID, attrs.FullName, attrs.Phone, attrs.City, attrs.Availability, attrs.Skills, attrs.Bio)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
