package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// recurrenceHorizon bounds how far an open-ended rrule is expanded
const recurrenceHorizon = 365 * 24 * time.Hour

// ActivityDefinition is one entry of an activity import file. With an rrule
// it describes a series: one activity per occurrence, each starting at the
// occurrence time and lasting Duration.
type ActivityDefinition struct {
	Title         string        `yaml:"title" validate:"required,max=200"`
	Description   string        `yaml:"description,omitempty"`
	Location      string        `yaml:"location,omitempty"`
	Category      string        `yaml:"category,omitempty"`
	Start         time.Time     `yaml:"start" validate:"required"`
	Duration      time.Duration `yaml:"duration,omitempty" validate:"min=0"`
	MaxVolunteers int           `yaml:"maxVolunteers" validate:"required,min=1"`
	ImageURL      string        `yaml:"imageURL,omitempty" validate:"omitempty,url"`
	Status        string        `yaml:"status,omitempty" validate:"omitempty,oneof=open closed completed"`
	RRule         string        `yaml:"rrule,omitempty"`
}

// ActivityFile is the document read by the importActivities command
type ActivityFile struct {
	Activities []ActivityDefinition `yaml:"activities" validate:"required,min=1,dive"`
}

// ImportResult lists the activities produced from a file. Skipped holds
// those already present in the backend with the same title and start.
type ImportResult struct {
	Activities []model.Activity
	Skipped    []model.Activity
	Inserted   bool
}

// ActivityImporter is the operator write path for activities
type ActivityImporter interface {
	ListActivities(ctx context.Context) ([]model.Activity, error)
	InsertActivities(ctx context.Context, activities []model.Activity) error
}

var validate = validator.New()

// ParseActivityFile decodes and validates an activity import file
func ParseActivityFile(data []byte) (*ActivityFile, error) {
	var file ActivityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse activity file: %w", err)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("activity file validation failed: %w", err)
	}
	for i, def := range file.Activities {
		if def.RRule == "" {
			continue
		}
		if _, err := rrule.StrToRRule(def.RRule); err != nil {
			return nil, fmt.Errorf("invalid rrule in activities[%d]: %w", i, err)
		}
	}
	return &file, nil
}

// ExpandActivities turns definitions into activities, one per rrule occurrence
func ExpandActivities(defs []ActivityDefinition, logger *zap.Logger) ([]model.Activity, error) {
	var out []model.Activity
	for i, def := range defs {
		starts := []time.Time{def.Start}
		if def.RRule != "" {
			rule, err := rrule.StrToRRule(def.RRule)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rrule for activity %d: %w", i, err)
			}
			rule.DTStart(def.Start)
			if rule.OrigOptions.Count > 0 || !rule.OrigOptions.Until.IsZero() {
				starts = rule.All()
			} else {
				starts = rule.Between(def.Start, def.Start.Add(recurrenceHorizon), true)
			}
			if len(starts) == 0 {
				return nil, fmt.Errorf("rrule for activity %q has no occurrences", def.Title)
			}
			logger.Debug("Expanded recurring activity",
				zap.String("title", def.Title),
				zap.String("rrule", def.RRule),
				zap.Int("occurrences", len(starts)))
		}

		for _, start := range starts {
			out = append(out, activityFrom(def, start))
		}
	}
	return out, nil
}

func activityFrom(def ActivityDefinition, start time.Time) model.Activity {
	a := model.Activity{
		Title:         def.Title,
		Description:   def.Description,
		Location:      def.Location,
		Category:      def.Category,
		StartDate:     start,
		Status:        model.ActivityStatus(def.Status),
		MaxVolunteers: def.MaxVolunteers,
		ImageURL:      def.ImageURL,
	}
	if a.Status == "" {
		a.Status = model.ActivityOpen
	}
	if def.Duration > 0 {
		end := start.Add(def.Duration)
		a.EndDate = &end
	}
	return a
}

// ImportActivities parses an activity file and inserts the activities it
// describes. A dry run only parses and expands.
func ImportActivities(ctx context.Context, store ActivityImporter, data []byte, dryRun bool, logger *zap.Logger) (*ImportResult, error) {
	file, err := ParseActivityFile(data)
	if err != nil {
		return nil, err
	}
	logger.Debug("Activity file parsed", zap.Int("definitions", len(file.Activities)))

	return ImportActivityDefinitions(ctx, store, file.Activities, dryRun, logger)
}

// ImportActivityDefinitions validates, expands and inserts definitions read
// from any source
func ImportActivityDefinitions(ctx context.Context, store ActivityImporter, defs []ActivityDefinition, dryRun bool, logger *zap.Logger) (*ImportResult, error) {
	if err := validate.Struct(&ActivityFile{Activities: defs}); err != nil {
		return nil, fmt.Errorf("activity validation failed: %w", err)
	}

	activities, err := ExpandActivities(defs, logger)
	if err != nil {
		return nil, err
	}

	existing, err := store.ListActivities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing activities: %w", err)
	}
	fresh, skipped := splitExisting(activities, existing)
	if len(skipped) > 0 {
		logger.Info("Skipping activities that were already imported", zap.Int("count", len(skipped)))
	}

	result := &ImportResult{Activities: fresh, Skipped: skipped}
	if dryRun {
		logger.Info("Dry run, not inserting activities", zap.Int("count", len(activities)))
		return result, nil
	}

	if len(fresh) > 0 {
		if err := store.InsertActivities(ctx, fresh); err != nil {
			return nil, fmt.Errorf("failed to insert activities: %w", err)
		}
	}
	result.Inserted = true

	logger.Info("Activities imported", zap.Int("count", len(fresh)))
	return result, nil
}

// splitExisting separates activities already stored, matched on title and
// start time, so that re-running an import does not duplicate them
func splitExisting(activities, existing []model.Activity) (fresh, skipped []model.Activity) {
	type key struct {
		title string
		start int64
	}
	seen := make(map[key]bool, len(existing))
	for _, a := range existing {
		seen[key{a.Title, a.StartDate.Unix()}] = true
	}
	for _, a := range activities {
		if seen[key{a.Title, a.StartDate.Unix()}] {
			skipped = append(skipped, a)
			continue
		}
		fresh = append(fresh, a)
	}
	return fresh, skipped
}
