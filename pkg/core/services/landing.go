package services

// TeaserActivity is an illustrative activity on the landing page. It is not
// read from the backend.
type TeaserActivity struct {
	Title       string
	Description string
	Location    string
	Date        string
	Volunteers  int
	Category    string
	ImageURL    string
}

// Feature is a titled paragraph of the about section
type Feature struct {
	Title       string
	Description string
}

// LandingView is the static content of the marketing page
type LandingView struct {
	Features   []Feature
	Benefits   []string
	Activities []TeaserActivity
}

var landing = LandingView{
	Features: []Feature{
		{Title: "Our Mission", Description: "To serve humanity through organized volunteer efforts, providing relief and support to those in need."},
		{Title: "Community Focus", Description: "Building stronger communities by connecting passionate volunteers with meaningful service opportunities."},
		{Title: "Compassion First", Description: "Every volunteer brings compassion and dedication, making a real difference in people's lives."},
	},
	Benefits: []string{
		"Flexible volunteering schedules",
		"Training and skill development",
		"Recognition and certificates",
		"Network with like-minded people",
		"Make a real community impact",
		"Personal growth opportunities",
	},
	Activities: []TeaserActivity{
		{
			Title:       "Community Health Camp",
			Description: "Provide free medical checkups and health awareness in underserved communities.",
			Location:    "Karachi, Pakistan",
			Date:        "Feb 15, 2026",
			Volunteers:  25,
			Category:    "Healthcare",
			ImageURL:    "https://images.unsplash.com/photo-1576091160550-2173dba999ef?auto=format&fit=crop&w=600&q=80",
		},
		{
			Title:       "Education Support Program",
			Description: "Help underprivileged children with tutoring and educational resources.",
			Location:    "Lahore, Pakistan",
			Date:        "Feb 20, 2026",
			Volunteers:  15,
			Category:    "Education",
			ImageURL:    "https://images.unsplash.com/photo-1503676260728-1c00da094a0b?auto=format&fit=crop&w=600&q=80",
		},
		{
			Title:       "Food Distribution Drive",
			Description: "Distribute essential food packages to families affected by economic hardship.",
			Location:    "Islamabad, Pakistan",
			Date:        "Feb 25, 2026",
			Volunteers:  30,
			Category:    "Relief",
			ImageURL:    "https://images.unsplash.com/photo-1593113598332-cd59a0c3a9e2?auto=format&fit=crop&w=600&q=80",
		},
	},
}

// Landing returns the marketing page content
func Landing() LandingView {
	return landing
}
