package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/viewstate"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// AssignmentPartition groups assignments by status, each newest first
type AssignmentPartition struct {
	Active    []model.AssignmentWithActivity `json:"active"`
	Completed []model.AssignmentWithActivity `json:"completed"`
	Cancelled []model.AssignmentWithActivity `json:"cancelled"`
}

// MyActivitiesStore defines the backend operations the my-activities page needs
type MyActivitiesStore interface {
	ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error)
	UpdateAssignmentStatus(ctx context.Context, ident model.Identity, assignmentID string, status model.AssignmentStatus) error
}

// MyActivities is the signed-in volunteer's assignment list
type MyActivities struct {
	store  MyActivitiesStore
	notes  *notify.Queue
	logger *zap.Logger

	assignments *viewstate.Synchronizer[model.AssignmentWithActivity]
}

func NewMyActivities(store MyActivitiesStore, notes *notify.Queue, logger *zap.Logger) *MyActivities {
	return &MyActivities{
		store:       store,
		notes:       notes,
		logger:      logger,
		assignments: viewstate.New[model.AssignmentWithActivity]("my-activities", logger),
	}
}

// Mount loads every assignment of the identity joined with its activity
func (m *MyActivities) Mount(ctx context.Context, ident model.Identity) error {
	return m.assignments.Load(ctx, func(ctx context.Context) ([]model.AssignmentWithActivity, error) {
		return m.store.ListAssignments(ctx, ident, nil)
	})
}

func (m *MyActivities) Reset() {
	m.assignments.Reset()
}

func (m *MyActivities) Loaded() bool {
	return m.assignments.Loaded()
}

// Partition splits the local list by status
func (m *MyActivities) Partition() AssignmentPartition {
	var p AssignmentPartition
	for _, a := range m.assignments.Snapshot() {
		switch a.Status {
		case model.AssignmentActive:
			p.Active = append(p.Active, a)
		case model.AssignmentCompleted:
			p.Completed = append(p.Completed, a)
		case model.AssignmentCancelled:
			p.Cancelled = append(p.Cancelled, a)
		}
	}
	return p
}

// Cancelling reports whether a cancel for the assignment is in flight
func (m *MyActivities) Cancelling(assignmentID string) bool {
	return m.assignments.InFlight(assignmentID)
}

// Cancel moves an active assignment to cancelled. The local list changes
// immediately and is restored to active when the backend rejects the update.
func (m *MyActivities) Cancel(ctx context.Context, ident model.Identity, assignmentID string) (*viewstate.Handle, error) {
	current, ok := m.find(assignmentID)
	if !ok {
		m.notes.Push(notify.Failure("Error", DescribeError(db.ErrNotFound, "Failed to cancel activity.")))
		return nil, db.ErrNotFound
	}
	if m.assignments.InFlight(assignmentID) {
		m.notes.Push(notify.Failure("Error", DescribeError(viewstate.ErrMutationInFlight, "")))
		return nil, viewstate.ErrMutationInFlight
	}
	if current.Status != model.AssignmentActive {
		m.notes.Push(notify.Failure("Error", DescribeError(ErrNotActive, "")))
		return nil, fmt.Errorf("assignment %s is %s: %w", assignmentID, current.Status, ErrNotActive)
	}

	logger := m.logger.With(zap.String("assignment_id", assignmentID), zap.String("user_id", ident.UserID))

	handle, err := m.assignments.Mutate(ctx, viewstate.Mutation[model.AssignmentWithActivity]{
		Key:    assignmentID,
		Apply:  withStatus(assignmentID, model.AssignmentCancelled),
		Revert: withStatus(assignmentID, model.AssignmentActive),
		Write: func(ctx context.Context) error {
			return m.store.UpdateAssignmentStatus(ctx, ident, assignmentID, model.AssignmentCancelled)
		},
		OnSettle: func(outcome viewstate.Outcome, err error) {
			if outcome == viewstate.Committed {
				logger.Info("Cancelled assignment", zap.String("activity_id", current.ActivityID))
				m.notes.Push(notify.Info("Activity Cancelled", "You have been removed from this activity."))
				return
			}
			logger.Warn("Failed to cancel assignment", zap.Error(err))
			m.notes.Push(notify.Failure("Error", DescribeError(err, "Failed to cancel activity.")))
		},
	})
	if err != nil {
		m.notes.Push(notify.Failure("Error", DescribeError(err, "Failed to cancel activity.")))
		return nil, err
	}
	return handle, nil
}

func withStatus(assignmentID string, status model.AssignmentStatus) viewstate.Update[model.AssignmentWithActivity] {
	return func(items []model.AssignmentWithActivity) []model.AssignmentWithActivity {
		out := make([]model.AssignmentWithActivity, len(items))
		copy(out, items)
		for i := range out {
			if out[i].ID == assignmentID {
				out[i].Status = status
			}
		}
		return out
	}
}

func (m *MyActivities) find(assignmentID string) (model.AssignmentWithActivity, bool) {
	for _, a := range m.assignments.Snapshot() {
		if a.ID == assignmentID {
			return a, true
		}
	}
	return model.AssignmentWithActivity{}, false
}
