package model

import (
	"strings"
	"time"
)

// Identity is an authenticated session for one registered volunteer
type Identity struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry.
// A zero ExpiresAt never expires.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// DisplayName is the local part of the e-mail address, shown in the header menu
func (i Identity) DisplayName() string {
	name, _, _ := strings.Cut(i.Email, "@")
	return name
}

// Profile is the editable personal record owned by an identity
type Profile struct {
	ID           string       `json:"id,omitempty"`
	UserID       string       `json:"user_id"`
	FullName     string       `json:"full_name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	City         string       `json:"city"`
	Availability Availability `json:"availability"`
	Skills       []string     `json:"skills"`
	Bio          string       `json:"bio"`
	AvatarURL    string       `json:"avatar_url,omitempty"`
}

// FirstName returns the first word of the full name
func (p Profile) FirstName() string {
	fields := strings.Fields(p.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ProfileAttributes is the writable subset of a profile.
// Nil pointers and nil slices are stored as null.
type ProfileAttributes struct {
	FullName     string   `json:"full_name"`
	Phone        string   `json:"phone"`
	City         *string  `json:"city"`
	Availability *string  `json:"availability"`
	Skills       []string `json:"skills"`
	Bio          *string  `json:"bio"`
}

// Activity is an operator-defined volunteer opportunity
type Activity struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Location          string         `json:"location"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           *time.Time     `json:"end_date"`
	Category          string         `json:"category"`
	Status            ActivityStatus `json:"status"`
	MaxVolunteers     int            `json:"max_volunteers"`
	CurrentVolunteers int            `json:"current_volunteers"`
	ImageURL          string         `json:"image_url"`
}

// DefaultCapacity applies to activities stored without a max_volunteers value
const DefaultCapacity = 10

// Capacity is MaxVolunteers, or DefaultCapacity when unset
func (a Activity) Capacity() int {
	if a.MaxVolunteers <= 0 {
		return DefaultCapacity
	}
	return a.MaxVolunteers
}

// SpotsLeft is capacity minus current volunteers; it can be negative when overbooked
func (a Activity) SpotsLeft() int {
	return a.Capacity() - a.CurrentVolunteers
}

// IsFull reports whether no spots remain
func (a Activity) IsFull() bool {
	return a.SpotsLeft() <= 0
}

// DisplayCategory falls back to "General" for uncategorised activities
func (a Activity) DisplayCategory() string {
	if a.Category == "" {
		return "General"
	}
	return a.Category
}

// Assignment links one identity to one activity
type Assignment struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	ActivityID string           `json:"activity_id"`
	Status     AssignmentStatus `json:"status"`
	AssignedAt time.Time        `json:"assigned_at"`
}

// AssignmentWithActivity is an assignment joined with its activity details
type AssignmentWithActivity struct {
	Assignment
	Activity Activity `json:"volunteer_activities"`
}

type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

type ActivityStatus string

const (
	ActivityOpen      ActivityStatus = "open"
	ActivityClosed    ActivityStatus = "closed"
	ActivityCompleted ActivityStatus = "completed"
)

type Availability string

const (
	AvailabilityWeekdays Availability = "weekdays"
	AvailabilityWeekends Availability = "weekends"
	AvailabilityFlexible Availability = "flexible"
	AvailabilityEvenings Availability = "evenings"
)

// AvailabilityOption pairs a stored value with its label
type AvailabilityOption struct {
	Value Availability
	Label string
}

var AvailabilityOptions = []AvailabilityOption{
	{Value: AvailabilityWeekdays, Label: "Weekdays Only"},
	{Value: AvailabilityWeekends, Label: "Weekends Only"},
	{Value: AvailabilityFlexible, Label: "Flexible Schedule"},
	{Value: AvailabilityEvenings, Label: "Evenings Only"},
}

func (a Availability) IsValid() bool {
	for _, opt := range AvailabilityOptions {
		if opt.Value == a {
			return true
		}
	}
	return false
}

// SkillOptions is the fixed skill vocabulary
var SkillOptions = []string{
	"Healthcare",
	"Education",
	"Relief Work",
	"Administration",
	"IT & Technology",
	"Communications",
	"Fundraising",
	"Community Outreach",
	"Transportation",
	"Other",
}

// DefaultActivityImages are cycled by list position for activities without an image
var DefaultActivityImages = []string{
	"https://images.unsplash.com/photo-1576091160550-2173dba999ef?auto=format&fit=crop&w=600&q=80",
	"https://images.unsplash.com/photo-1503676260728-1c00da094a0b?auto=format&fit=crop&w=600&q=80",
	"https://images.unsplash.com/photo-1593113598332-cd59a0c3a9e2?auto=format&fit=crop&w=600&q=80",
	"https://images.unsplash.com/photo-1559027615-cd4628902d4a?auto=format&fit=crop&w=600&q=80",
}

// ImageFor returns the activity image or a default chosen by index
func ImageFor(a Activity, index int) string {
	if a.ImageURL != "" {
		return a.ImageURL
	}
	if index < 0 {
		index = -index
	}
	return DefaultActivityImages[index%len(DefaultActivityImages)]
}
