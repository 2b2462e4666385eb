package validation

import (
	"regexp"
	"strings"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

var (
	phonePattern    = regexp.MustCompile(`^[\d\s\-+()]+$`)
	hasLetter       = regexp.MustCompile(`[A-Za-z]`)
	hasDigit        = regexp.MustCompile(`\d`)
	availabilityIDs = availabilityValues()
)

func availabilityValues() []string {
	values := make([]string, 0, len(model.AvailabilityOptions))
	for _, opt := range model.AvailabilityOptions {
		values = append(values, string(opt.Value))
	}
	return values
}

// RegistrationInput is the raw sign-up form
type RegistrationInput struct {
	FullName        string
	Email           string
	Phone           string
	City            string
	Password        string
	ConfirmPassword string
	Availability    string
	Skills          []string
	Bio             string
	AgreeToTerms    bool
}

// Trimmed returns a copy with the trimmed text fields the schema validates.
// Passwords are kept verbatim.
func (in RegistrationInput) Trimmed() RegistrationInput {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.City = strings.TrimSpace(in.City)
	in.Bio = strings.TrimSpace(in.Bio)
	return in
}

// ProfileInput is the raw profile edit form
type ProfileInput struct {
	FullName     string
	Phone        string
	City         string
	Availability string
	Skills       []string
	Bio          string
}

func (in ProfileInput) Trimmed() ProfileInput {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.City = strings.TrimSpace(in.City)
	in.Bio = strings.TrimSpace(in.Bio)
	return in
}

// LoginInput is the raw sign-in form
type LoginInput struct {
	Email    string
	Password string
}

func fullNameRules() []Rule[string] {
	return []Rule[string]{
		MinLen(2, "Name must be at least 2 characters"),
		MaxLen(100, "Name is too long"),
	}
}

func phoneRules() []Rule[string] {
	return []Rule[string]{
		MinLen(10, "Phone number must be at least 10 digits"),
		MaxLen(20, "Phone number is too long"),
		Matches(phonePattern, "Invalid phone number format"),
	}
}

func emailRules() []Rule[string] {
	return []Rule[string]{
		Email("Invalid email address"),
		MaxLen(255, "Email is too long"),
	}
}

const (
	FieldFullName        = "fullName"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldCity            = "city"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldAvailability    = "availability"
	FieldSkills          = "skills"
	FieldBio             = "bio"
	FieldAgreeToTerms    = "agreeToTerms"
)

// ValidateRegistration checks the sign-up form. The password confirmation is
// compared only once every schema field passes.
func ValidateRegistration(in RegistrationInput) Errors {
	in = in.Trimmed()
	errs := Errors{}

	Check(errs, FieldFullName, in.FullName, fullNameRules()...)
	Check(errs, FieldEmail, in.Email, emailRules()...)
	Check(errs, FieldPhone, in.Phone, phoneRules()...)
	Check(errs, FieldCity, in.City,
		MinLen(2, "City is required"),
		MaxLen(100, "City name is too long"),
	)
	Check(errs, FieldPassword, in.Password,
		MinLen(8, "Password must be at least 8 characters"),
		Matches(hasLetter, "Password must contain at least one letter"),
		Matches(hasDigit, "Password must contain at least one number"),
	)
	Check(errs, FieldAvailability, in.Availability,
		Required("Please select your availability"),
		OneOf(availabilityIDs, "Please select your availability"),
	)
	Check(errs, FieldSkills, in.Skills,
		NonEmpty("Please select at least one skill"),
		SubsetOf(model.SkillOptions, "Please select skills from the list"),
	)
	Check(errs, FieldBio, in.Bio, MaxLen(500, "Bio must be less than 500 characters"))
	Check(errs, FieldAgreeToTerms, in.AgreeToTerms, MustBeTrue("You must agree to the terms"))

	if !errs.Valid() {
		return errs
	}

	if in.Password != in.ConfirmPassword {
		errs[FieldConfirmPassword] = "Passwords do not match"
	}
	return errs
}

// Profile form field names follow the stored column names
const (
	FieldProfileFullName     = "full_name"
	FieldProfilePhone        = "phone"
	FieldProfileCity         = "city"
	FieldProfileAvailability = "availability"
	FieldProfileSkills       = "skills"
	FieldProfileBio          = "bio"
)

// ValidateProfile checks the profile edit form. City, availability, skills and
// bio may all be empty.
func ValidateProfile(in ProfileInput) Errors {
	in = in.Trimmed()
	errs := Errors{}

	Check(errs, FieldProfileFullName, in.FullName, fullNameRules()...)
	Check(errs, FieldProfilePhone, in.Phone, phoneRules()...)
	Check(errs, FieldProfileCity, in.City, MaxLen(100, "City name is too long"))
	Check(errs, FieldProfileAvailability, in.Availability,
		Optional(OneOf(availabilityIDs, "Please select a valid availability")),
	)
	Check(errs, FieldProfileSkills, in.Skills, SubsetOf(model.SkillOptions, "Please select skills from the list"))
	Check(errs, FieldProfileBio, in.Bio, MaxLen(500, "Bio must be less than 500 characters"))

	return errs
}

// ValidateLogin checks the sign-in form
func ValidateLogin(in LoginInput) Errors {
	errs := Errors{}
	Check(errs, FieldEmail, strings.TrimSpace(in.Email), emailRules()...)
	Check(errs, FieldPassword, in.Password, Required("Password is required"))
	return errs
}
