package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegistration() RegistrationInput {
	return RegistrationInput{
		FullName:        "Ayesha Khan",
		Email:           "ayesha@example.com",
		Phone:           "+92 300 1234567",
		City:            "Karachi",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		Availability:    "weekends",
		Skills:          []string{"Healthcare", "Education"},
		Bio:             "Happy to help.",
		AgreeToTerms:    true,
	}
}

func TestValidateRegistration_Valid(t *testing.T) {
	errs := ValidateRegistration(validRegistration())
	assert.True(t, errs.Valid())
	assert.NoError(t, errs.Err())
}

func TestValidateRegistration_FieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RegistrationInput)
		field   string
		message string
	}{
		{"short name", func(in *RegistrationInput) { in.FullName = " A " }, FieldFullName, "Name must be at least 2 characters"},
		{"long name", func(in *RegistrationInput) { in.FullName = strings.Repeat("a", 101) }, FieldFullName, "Name is too long"},
		{"bad email", func(in *RegistrationInput) { in.Email = "not-an-email" }, FieldEmail, "Invalid email address"},
		{"double dot email", func(in *RegistrationInput) { in.Email = "a..b@example.com" }, FieldEmail, "Invalid email address"},
		{"long email", func(in *RegistrationInput) { in.Email = strings.Repeat("a", 250) + "@example.com" }, FieldEmail, "Email is too long"},
		{"short phone", func(in *RegistrationInput) { in.Phone = "12345" }, FieldPhone, "Phone number must be at least 10 digits"},
		{"long phone", func(in *RegistrationInput) { in.Phone = strings.Repeat("1", 21) }, FieldPhone, "Phone number is too long"},
		{"phone charset", func(in *RegistrationInput) { in.Phone = "0300-CALL-ME" }, FieldPhone, "Invalid phone number format"},
		{"missing city", func(in *RegistrationInput) { in.City = "" }, FieldCity, "City is required"},
		{"short password", func(in *RegistrationInput) { in.Password = "abc1" }, FieldPassword, "Password must be at least 8 characters"},
		{"password without letter", func(in *RegistrationInput) { in.Password = "12345678" }, FieldPassword, "Password must contain at least one letter"},
		{"password without digit", func(in *RegistrationInput) { in.Password = "abcdefgh" }, FieldPassword, "Password must contain at least one number"},
		{"no availability", func(in *RegistrationInput) { in.Availability = "" }, FieldAvailability, "Please select your availability"},
		{"unknown availability", func(in *RegistrationInput) { in.Availability = "mornings" }, FieldAvailability, "Please select your availability"},
		{"no skills", func(in *RegistrationInput) { in.Skills = nil }, FieldSkills, "Please select at least one skill"},
		{"unknown skill", func(in *RegistrationInput) { in.Skills = []string{"Juggling"} }, FieldSkills, "Please select skills from the list"},
		{"long bio", func(in *RegistrationInput) { in.Bio = strings.Repeat("b", 501) }, FieldBio, "Bio must be less than 500 characters"},
		{"terms", func(in *RegistrationInput) { in.AgreeToTerms = false }, FieldAgreeToTerms, "You must agree to the terms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegistration()
			tt.mutate(&in)

			errs := ValidateRegistration(in)
			require.False(t, errs.Valid())
			assert.Equal(t, tt.message, errs[tt.field])
			assert.Len(t, errs, 1)
		})
	}
}

func TestValidateRegistration_FirstRuleWins(t *testing.T) {
	in := validRegistration()
	in.Password = "abc"
	in.ConfirmPassword = "abc"

	errs := ValidateRegistration(in)
	assert.Equal(t, "Password must be at least 8 characters", errs[FieldPassword])
}

func TestValidateRegistration_PasswordMismatchCheckedAfterSchema(t *testing.T) {
	in := validRegistration()
	in.ConfirmPassword = "different1"

	errs := ValidateRegistration(in)
	assert.Equal(t, Errors{FieldConfirmPassword: "Passwords do not match"}, errs)

	// a schema failure hides the mismatch
	in.City = ""
	errs = ValidateRegistration(in)
	assert.Contains(t, errs, FieldCity)
	assert.NotContains(t, errs, FieldConfirmPassword)
}

func TestValidateRegistration_MultipleFields(t *testing.T) {
	errs := ValidateRegistration(RegistrationInput{})
	assert.Equal(t, []string{
		FieldAgreeToTerms,
		FieldAvailability,
		FieldCity,
		FieldEmail,
		FieldFullName,
		FieldPassword,
		FieldPhone,
		FieldSkills,
	}, errs.Fields())
	assert.ErrorContains(t, errs.Err(), "validation failed")
}

func TestValidateProfile(t *testing.T) {
	valid := ProfileInput{FullName: "Bilal Ahmed", Phone: "0300 1234567"}
	assert.True(t, ValidateProfile(valid).Valid(), "optional fields may be empty")

	valid.Skills = nil
	valid.City = "Lahore"
	valid.Availability = "evenings"
	assert.True(t, ValidateProfile(valid).Valid())

	short := valid
	short.Phone = "12345"
	errs := ValidateProfile(short)
	assert.Equal(t, "Phone number must be at least 10 digits", errs[FieldProfilePhone])

	badAvailability := valid
	badAvailability.Availability = "sometimes"
	assert.Contains(t, ValidateProfile(badAvailability), FieldProfileAvailability)

	longCity := valid
	longCity.City = strings.Repeat("c", 101)
	assert.Equal(t, "City name is too long", ValidateProfile(longCity)[FieldProfileCity])
}

func TestValidateLogin(t *testing.T) {
	assert.True(t, ValidateLogin(LoginInput{Email: " a@b.co ", Password: "x"}).Valid())

	errs := ValidateLogin(LoginInput{Email: "nope"})
	assert.Equal(t, "Invalid email address", errs[FieldEmail])
	assert.Equal(t, "Password is required", errs[FieldPassword])
}

func TestCheck_KeepsExistingError(t *testing.T) {
	errs := Errors{"name": "first"}
	Check(errs, "name", "", Required("second"))
	assert.Equal(t, "first", errs["name"])
}
