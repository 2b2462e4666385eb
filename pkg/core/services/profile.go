package services

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
)

// ProfileForm is the profile edit form seeded from the stored profile
type ProfileForm struct {
	Email string `json:"email"`
	validation.ProfileInput
}

// ProfileStore defines the backend operations the profile page needs
type ProfileStore interface {
	GetProfile(ctx context.Context, ident model.Identity) (*model.Profile, error)
	UpdateProfile(ctx context.Context, ident model.Identity, attrs model.ProfileAttributes) error
}

// LoadProfile reads the stored profile into the edit form
func LoadProfile(ctx context.Context, store ProfileStore, ident model.Identity, logger *zap.Logger) (*ProfileForm, error) {
	profile, err := store.GetProfile(ctx, ident)
	if err != nil {
		logger.Warn("Failed to fetch profile", zap.String("user_id", ident.UserID), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	email := profile.Email
	if email == "" {
		email = ident.Email
	}
	return &ProfileForm{
		Email: email,
		ProfileInput: validation.ProfileInput{
			FullName:     profile.FullName,
			Phone:        profile.Phone,
			City:         profile.City,
			Availability: string(profile.Availability),
			Skills:       slices.Clone(profile.Skills),
			Bio:          profile.Bio,
		},
	}, nil
}

// SaveProfile validates the form and writes it. When validation fails the
// field errors are returned with ErrValidation and nothing is written.
func SaveProfile(ctx context.Context, store ProfileStore, notes *notify.Queue, ident model.Identity, in validation.ProfileInput, logger *zap.Logger) (validation.Errors, error) {
	if errs := validation.ValidateProfile(in); !errs.Valid() {
		logger.Debug("Profile form rejected", zap.Strings("fields", errs.Fields()))
		notes.Push(notify.Failure("Validation Error", "Please fix the errors in the form."))
		return errs, ErrValidation
	}

	if err := store.UpdateProfile(ctx, ident, ProfileAttributesFrom(in)); err != nil {
		logger.Warn("Failed to update profile", zap.String("user_id", ident.UserID), zap.Error(err))
		notes.Push(notify.Failure("Update Failed", DescribeError(err, "Failed to update profile.")))
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	logger.Info("Profile updated", zap.String("user_id", ident.UserID))
	notes.Push(notify.Info("Profile Updated", "Your profile has been saved successfully."))
	return nil, nil
}

// ProfileAttributesFrom trims the form and stores empty optional fields as null
func ProfileAttributesFrom(in validation.ProfileInput) model.ProfileAttributes {
	in = in.Trimmed()
	attrs := model.ProfileAttributes{
		FullName:     in.FullName,
		Phone:        in.Phone,
		City:         nullable(in.City),
		Availability: nullable(in.Availability),
		Bio:          nullable(in.Bio),
	}
	if len(in.Skills) > 0 {
		attrs.Skills = slices.Clone(in.Skills)
	}
	return attrs
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
