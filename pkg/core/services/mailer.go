package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// Mailer sends plain-text e-mails. gmailclient.Client implements it.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

func welcomeEmail(fullName string) (subject, body string) {
	name := strings.TrimSpace(fullName)
	if name == "" {
		name = "Volunteer"
	}
	subject = "Welcome to Al-Khidmat Volunteer Portal"
	body = fmt.Sprintf(`Assalam-o-Alaikum %s,

Thank you for registering as a volunteer. You can now browse open opportunities
and join the activities that match your skills.

Al-Khidmat Volunteer Portal`, name)
	return subject, body
}

func joinedEmail(activity model.Activity) (subject, body string) {
	subject = fmt.Sprintf("You have joined %s", activity.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "You have been added to %s.\n\n", activity.Title)
	fmt.Fprintf(&b, "Date: %s\n", activity.StartDate.Format("Mon 2 Jan 2006"))
	if activity.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", activity.Location)
	}
	b.WriteString("\nYou can cancel from the My Activities page if your plans change.\n")
	return subject, b.String()
}

// sendMail delivers in the background; failures are logged and never reach the user
func sendMail(mailer Mailer, logger *zap.Logger, to, subject, body string) {
	if mailer == nil || to == "" {
		return
	}
	go func() {
		if err := mailer.SendEmail(to, subject, body); err != nil {
			logger.Warn("Failed to send email", zap.String("subject", subject), zap.Error(err))
			return
		}
		logger.Debug("Email sent", zap.String("subject", subject))
	}()
}
