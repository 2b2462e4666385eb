package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

func validRegistration() validation.RegistrationInput {
	return validation.RegistrationInput{
		FullName:        " Hina Baig ",
		Email:           "hina@example.com",
		Phone:           "0300 1234567",
		City:            "Lahore",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		Availability:    "weekends",
		Skills:          []string{"Education", "Healthcare"},
		AgreeToTerms:    true,
	}
}

func TestRegister_InvalidInputNeverReachesBackend(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *validation.RegistrationInput)
		field  string
	}{
		{"short name", func(in *validation.RegistrationInput) { in.FullName = "H" }, validation.FieldFullName},
		{"bad email", func(in *validation.RegistrationInput) { in.Email = "hina" }, validation.FieldEmail},
		{"bad phone", func(in *validation.RegistrationInput) { in.Phone = "0300-CALL-NOW" }, validation.FieldPhone},
		{"weak password", func(in *validation.RegistrationInput) { in.Password, in.ConfirmPassword = "password", "password" }, validation.FieldPassword},
		{"mismatch", func(in *validation.RegistrationInput) { in.ConfirmPassword = "secret124" }, validation.FieldConfirmPassword},
		{"no city", func(in *validation.RegistrationInput) { in.City = "" }, validation.FieldCity},
		{"no availability", func(in *validation.RegistrationInput) { in.Availability = "" }, validation.FieldAvailability},
		{"no skills", func(in *validation.RegistrationInput) { in.Skills = nil }, validation.FieldSkills},
		{"terms", func(in *validation.RegistrationInput) { in.AgreeToTerms = false }, validation.FieldAgreeToTerms},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuth{identity: &volunteer}
			store := &mockStore{}
			notes := notify.NewQueue()
			in := validRegistration()
			tt.modify(&in)

			result, err := Register(context.Background(), auth, store, notes, nil, in, zap.NewNop())

			assert.ErrorIs(t, err, ErrValidation)
			require.NotNil(t, result)
			assert.Contains(t, result.Errors, tt.field)
			assert.Empty(t, auth.signUps)
			assert.Empty(t, store.updatedProfiles)
			assert.Equal(t, "Validation Error", lastNote(t, notes).Title)
		})
	}
}

func TestRegister_Success(t *testing.T) {
	auth := &mockAuth{identity: &volunteer}
	store := &mockStore{}
	notes := notify.NewQueue()
	mailer := newMockMailer()

	result, err := Register(context.Background(), auth, store, notes, mailer, validRegistration(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "/dashboard", result.Redirect)
	assert.Equal(t, volunteer.UserID, result.Identity.UserID)

	require.Len(t, auth.signUps, 1)
	seed := auth.signUps[0]
	assert.Equal(t, "Hina Baig", seed.FullName)
	assert.Equal(t, []string{"Education", "Healthcare"}, seed.Skills)
	require.NotNil(t, seed.Availability)
	assert.Equal(t, "weekends", *seed.Availability)

	require.Len(t, store.updatedProfiles, 1)
	assert.Equal(t, seed, store.updatedProfiles[0])

	note := lastNote(t, notes)
	assert.Equal(t, "Registration Successful!", note.Title)
	assert.Equal(t, "Welcome to Al-Khidmat Volunteer Portal. Redirecting to dashboard...", note.Description)

	mail := mailer.next(t)
	assert.Equal(t, volunteer.Email, mail.to)
	assert.Contains(t, mail.body, "Hina Baig")
}

func TestRegister_AwaitingConfirmation(t *testing.T) {
	auth := &mockAuth{}
	store := &mockStore{}
	notes := notify.NewQueue()

	result, err := Register(context.Background(), auth, store, notes, nil, validRegistration(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "/login", result.Redirect)
	assert.Nil(t, result.Identity)
	assert.Empty(t, store.updatedProfiles)
	assert.Equal(t, "Check Your Email", lastNote(t, notes).Title)
}

func TestRegister_EmailTaken(t *testing.T) {
	auth := &mockAuth{err: &db.RemoteError{Status: 422, Code: "user_already_exists", Message: "User already registered", Kind: db.ErrEmailTaken}}
	notes := notify.NewQueue()

	_, err := Register(context.Background(), auth, &mockStore{}, notes, nil, validRegistration(), zap.NewNop())

	assert.ErrorIs(t, err, db.ErrEmailTaken)
	note := lastNote(t, notes)
	assert.Equal(t, notify.Destructive, note.Variant)
	assert.Equal(t, "Registration Failed", note.Title)
	assert.Equal(t, "User already registered", note.Description)
}

func TestRegister_ProfileWriteFailureIsNotFatal(t *testing.T) {
	auth := &mockAuth{identity: &volunteer}
	store := &mockStore{updateProfileErr: db.ErrNotFound}

	result, err := Register(context.Background(), auth, store, notify.NewQueue(), nil, validRegistration(), zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, "/dashboard", result.Redirect)
}

func TestLogin(t *testing.T) {
	auth := &mockAuth{identity: &volunteer}
	notes := notify.NewQueue()

	result, err := Login(context.Background(), auth, notes, validation.LoginInput{Email: " hina@example.com ", Password: "secret123"}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "/dashboard", result.Redirect)
	assert.Equal(t, []string{"hina@example.com"}, auth.emails)
	assert.Equal(t, notify.Default, lastNote(t, notes).Variant)
}

func TestLogin_Failures(t *testing.T) {
	notes := notify.NewQueue()
	auth := &mockAuth{err: db.ErrInvalidCredentials}

	result, err := Login(context.Background(), auth, notes, validation.LoginInput{Email: "nope"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, result.Errors, validation.FieldEmail)
	assert.Contains(t, result.Errors, validation.FieldPassword)
	assert.Empty(t, auth.emails)

	_, err = Login(context.Background(), auth, notes, validation.LoginInput{Email: "hina@example.com", Password: "wrong"}, zap.NewNop())
	assert.ErrorIs(t, err, db.ErrInvalidCredentials)

	note := lastNote(t, notes)
	assert.Equal(t, "Login Failed", note.Title)
	assert.Equal(t, "Invalid login credentials", note.Description)
}

func TestRegistrationAttributes_KeepsEmptyOptionalFields(t *testing.T) {
	in := validRegistration().Trimmed()
	attrs := registrationAttributes(in)

	require.NotNil(t, attrs.Bio)
	assert.Equal(t, "", *attrs.Bio)
}
