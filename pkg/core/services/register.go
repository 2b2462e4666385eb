package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
)

// Authenticator changes the identity of a browser session. session.Context implements it.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
}

// ProfileUpdater writes a profile
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, ident model.Identity, attrs model.ProfileAttributes) error
}

// AuthResult is the outcome of a sign-up or sign-in form
type AuthResult struct {
	Errors   validation.Errors
	Identity *model.Identity
	// Redirect is the page to navigate to on success
	Redirect string
}

// Register validates the sign-up form, creates the identity with the profile
// seed and then writes the full profile. A backend that wants the e-mail
// address confirmed first issues no session; the volunteer is sent to the
// login page instead of the dashboard.
func Register(
	ctx context.Context,
	auth Authenticator,
	profiles ProfileUpdater,
	notes *notify.Queue,
	mailer Mailer,
	in validation.RegistrationInput,
	logger *zap.Logger,
) (*AuthResult, error) {
	if errs := validation.ValidateRegistration(in); !errs.Valid() {
		logger.Debug("Registration form rejected", zap.Strings("fields", errs.Fields()))
		notes.Push(notify.Failure("Validation Error", "Please fix the errors in the form."))
		return &AuthResult{Errors: errs}, ErrValidation
	}

	in = in.Trimmed()
	seed := registrationAttributes(in)

	ident, err := auth.SignUp(ctx, in.Email, in.Password, seed)
	if err != nil {
		logger.Warn("Registration failed", zap.Error(err))
		notes.Push(notify.Failure("Registration Failed", DescribeError(err, "")))
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if ident == nil {
		logger.Info("Registration awaiting e-mail confirmation")
		notes.Push(notify.Info("Check Your Email", "Please confirm your e-mail address, then sign in."))
		return &AuthResult{Redirect: "/login"}, nil
	}

	// a backend trigger may seed only part of the profile
	if err := profiles.UpdateProfile(ctx, *ident, seed); err != nil {
		logger.Warn("Failed to write profile after registration",
			zap.String("user_id", ident.UserID), zap.Error(err))
	}

	logger.Info("Volunteer registered", zap.String("user_id", ident.UserID))
	notes.Push(notify.Info("Registration Successful!", "Welcome to Al-Khidmat Volunteer Portal. Redirecting to dashboard..."))

	subject, body := welcomeEmail(in.FullName)
	sendMail(mailer, logger, ident.Email, subject, body)

	return &AuthResult{Identity: ident, Redirect: "/dashboard"}, nil
}

func registrationAttributes(in validation.RegistrationInput) model.ProfileAttributes {
	city, availability, bio := in.City, in.Availability, in.Bio
	return model.ProfileAttributes{
		FullName:     in.FullName,
		Phone:        in.Phone,
		City:         &city,
		Availability: &availability,
		Skills:       slices.Clone(in.Skills),
		Bio:          &bio,
	}
}

// Login validates the sign-in form and authenticates
func Login(ctx context.Context, auth Authenticator, notes *notify.Queue, in validation.LoginInput, logger *zap.Logger) (*AuthResult, error) {
	if errs := validation.ValidateLogin(in); !errs.Valid() {
		notes.Push(notify.Failure("Validation Error", "Please fix the errors in the form."))
		return &AuthResult{Errors: errs}, ErrValidation
	}

	ident, err := auth.SignIn(ctx, strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		logger.Warn("Login failed", zap.Error(err))
		notes.Push(notify.Failure("Login Failed", DescribeError(err, "")))
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	notes.Push(notify.Info("Welcome Back!", "You have successfully logged in."))
	return &AuthResult{Identity: ident, Redirect: "/dashboard"}, nil
}
