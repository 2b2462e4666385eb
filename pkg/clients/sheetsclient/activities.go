package sheetsclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

// Column names in the activities sheet
const (
	colTitle         = "Title"
	colDescription   = "Description"
	colLocation      = "Location"
	colCategory      = "Category"
	colStart         = "Start"
	colDuration      = "Duration"
	colMaxVolunteers = "Max volunteers"
	colImageURL      = "Image URL"
	colStatus        = "Status"
	colRRule         = "Recurrence"
)

var requiredActivityFields = []string{colTitle, colStart, colMaxVolunteers}

// Start cells may be RFC 3339 or the sheet's plain date-time format (UTC)
var startLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ListActivityDefinitions reads activity definitions from a sheet range whose
// first row is the header
func (c *Client) ListActivityDefinitions(ctx context.Context, spreadsheetID, sheetRange string) ([]services.ActivityDefinition, error) {
	values, err := c.GetValues(ctx, spreadsheetID, sheetRange)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity data: %w", err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	defs, err := parseActivities(values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activities: %w", err)
	}

	c.logger.Debug("Activities read from sheet",
		zap.String("spreadsheet_id", spreadsheetID),
		zap.String("range", sheetRange),
		zap.Int("definitions", len(defs)))

	return defs, nil
}

// parseActivities converts raw spreadsheet data into activity definitions
func parseActivities(raw [][]interface{}) ([]services.ActivityDefinition, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}

	fieldIndexes := make(map[string]int)
	for i, cell := range raw[0] {
		if name, ok := cell.(string); ok {
			fieldIndexes[strings.TrimSpace(name)] = i
		}
	}
	for _, field := range requiredActivityFields {
		if _, ok := fieldIndexes[field]; !ok {
			return nil, fmt.Errorf("missing required field in header: %s", field)
		}
	}

	getField := func(field string, row []interface{}) string {
		index, ok := fieldIndexes[field]
		if !ok || index >= len(row) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[index]))
	}

	defs := make([]services.ActivityDefinition, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		row := raw[i]

		title := getField(colTitle, row)
		// Skip empty rows
		if title == "" {
			continue
		}

		start, err := parseStart(getField(colStart, row))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}

		maxVolunteers, err := strconv.Atoi(getField(colMaxVolunteers, row))
		if err != nil {
			return nil, fmt.Errorf("row %d: max volunteers must be a number", i+1)
		}

		def := services.ActivityDefinition{
			Title:         title,
			Start:         start,
			MaxVolunteers: maxVolunteers,
			Description:   getField(colDescription, row),
			Location:      getField(colLocation, row),
			Category:      getField(colCategory, row),
			ImageURL:      getField(colImageURL, row),
			Status:        strings.ToLower(getField(colStatus, row)),
			RRule:         getField(colRRule, row),
		}

		if d := getField(colDuration, row); d != "" {
			def.Duration, err = time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid duration %q", i+1, d)
			}
		}

		defs = append(defs, def)
	}

	return defs, nil
}

func parseStart(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("start is required")
	}
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start %q", value)
}
