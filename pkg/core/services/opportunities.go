package services

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/viewstate"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// CardAction is the control shown on an opportunity card
type CardAction string

const (
	ActionJoin     CardAction = "join"
	ActionJoined   CardAction = "joined"
	ActionFull     CardAction = "full"
	ActionRegister CardAction = "register"
)

// Label is the button text for the action
func (a CardAction) Label() string {
	switch a {
	case ActionJoined:
		return "Already Joined"
	case ActionFull:
		return "Activity Full"
	case ActionRegister:
		return "Register to Join"
	default:
		return "Join Activity"
	}
}

// OpportunityCard is one open activity with its derived fields
type OpportunityCard struct {
	Activity  model.Activity `json:"activity"`
	ImageURL  string         `json:"image_url"`
	SpotsLeft int            `json:"spots_left"`
	IsFull    bool           `json:"is_full"`
	IsJoined  bool           `json:"is_joined"`
	// Joining is true while a join for this activity is in flight
	Joining bool       `json:"joining"`
	CanJoin bool       `json:"can_join"`
	Action  CardAction `json:"action"`
}

// OpportunityStore defines the backend operations the opportunities page needs
type OpportunityStore interface {
	ListOpenActivities(ctx context.Context) ([]model.Activity, error)
	ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error)
	InsertAssignment(ctx context.Context, ident model.Identity, activityID string) (*model.Assignment, error)
}

// Opportunities is the open-activities page of one browser session
type Opportunities struct {
	store  OpportunityStore
	notes  *notify.Queue
	mailer Mailer
	logger *zap.Logger

	activities *viewstate.Synchronizer[model.Activity]
	joined     *viewstate.Synchronizer[string]

	signedIn atomic.Bool
}

// NewOpportunities creates the page controller. mailer may be nil.
func NewOpportunities(store OpportunityStore, notes *notify.Queue, mailer Mailer, logger *zap.Logger) *Opportunities {
	return &Opportunities{
		store:      store,
		notes:      notes,
		mailer:     mailer,
		logger:     logger,
		activities: viewstate.New[model.Activity]("opportunities", logger),
		joined:     viewstate.New[string]("joined-activities", logger),
	}
}

// Mount loads the open activities and, for a signed-in identity, the ids of
// the activities it has already joined
func (o *Opportunities) Mount(ctx context.Context, ident *model.Identity) error {
	o.logger.Debug("Mounting opportunities", zap.Bool("signed_in", ident != nil))

	if err := o.activities.Load(ctx, o.store.ListOpenActivities); err != nil {
		return err
	}

	o.signedIn.Store(ident != nil)
	if ident == nil {
		o.joined.Reset()
		return nil
	}

	identity := *ident
	return o.joined.Load(ctx, func(ctx context.Context) ([]string, error) {
		active := model.AssignmentActive
		rows, err := o.store.ListAssignments(ctx, identity, &active)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ActivityID)
		}
		return ids, nil
	})
}

// Reset forgets everything loaded; the next Mount starts from scratch
func (o *Opportunities) Reset() {
	o.activities.Reset()
	o.joined.Reset()
	o.signedIn.Store(false)
}

// Cards derives the card state of every loaded activity
func (o *Opportunities) Cards() []OpportunityCard {
	activities := o.activities.Snapshot()
	joined := o.joined.Snapshot()

	cards := make([]OpportunityCard, 0, len(activities))
	for i, a := range activities {
		card := OpportunityCard{
			Activity:  a,
			ImageURL:  model.ImageFor(a, i),
			SpotsLeft: a.SpotsLeft(),
			IsFull:    a.IsFull(),
			IsJoined:  slices.Contains(joined, a.ID),
			Joining:   o.joined.InFlight(a.ID),
		}
		switch {
		case card.IsJoined:
			card.Action = ActionJoined
		case card.IsFull:
			card.Action = ActionFull
		case o.signedIn.Load():
			card.Action = ActionJoin
			card.CanJoin = !card.Joining
		default:
			card.Action = ActionRegister
		}
		cards = append(cards, card)
	}
	return cards
}

// Loaded reports whether the activity list has been loaded
func (o *Opportunities) Loaded() bool {
	return o.activities.Loaded()
}

// Join adds the identity to the activity. The activity shows as joined
// immediately; the returned handle settles once the backend answers, and a
// failed insert un-joins it again. A nil handle means the join was refused
// before reaching the backend.
func (o *Opportunities) Join(ctx context.Context, ident *model.Identity, activityID string) (*viewstate.Handle, error) {
	if ident == nil {
		o.notes.Push(notify.Failure("Login Required", "Please login to join activities."))
		return nil, db.ErrUnauthenticated
	}

	activity, ok := o.find(activityID)
	if !ok {
		o.notes.Push(notify.Failure("Failed to Join", DescribeError(db.ErrActivityNotFound, "")))
		return nil, db.ErrActivityNotFound
	}
	if o.joined.InFlight(activityID) {
		o.notes.Push(notify.Failure("Failed to Join", DescribeError(viewstate.ErrMutationInFlight, "")))
		return nil, viewstate.ErrMutationInFlight
	}
	if slices.Contains(o.joined.Snapshot(), activityID) {
		o.notes.Push(notify.Failure("Failed to Join", DescribeError(db.ErrDuplicateAssignment, "")))
		return nil, db.ErrDuplicateAssignment
	}
	if activity.IsFull() {
		o.notes.Push(notify.Failure("Failed to Join", DescribeError(ErrActivityFull, "")))
		return nil, fmt.Errorf("activity %s: %w", activityID, ErrActivityFull)
	}

	identity := *ident
	logger := o.logger.With(zap.String("activity_id", activityID), zap.String("user_id", identity.UserID))

	handle, err := o.joined.Mutate(ctx, viewstate.Mutation[string]{
		Key: activityID,
		Apply: func(ids []string) []string {
			if slices.Contains(ids, activityID) {
				return ids
			}
			return append(slices.Clone(ids), activityID)
		},
		Revert: func(ids []string) []string {
			return slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == activityID })
		},
		Write: func(ctx context.Context) error {
			_, err := o.store.InsertAssignment(ctx, identity, activityID)
			return err
		},
		OnSettle: func(outcome viewstate.Outcome, err error) {
			if outcome == viewstate.Committed {
				logger.Info("Joined activity")
				o.notes.Push(notify.Info("Successfully Joined!", "You have been added to this volunteer activity."))
				subject, body := joinedEmail(activity)
				sendMail(o.mailer, logger, identity.Email, subject, body)
				return
			}
			logger.Warn("Failed to join activity", zap.Error(err))
			o.notes.Push(notify.Failure("Failed to Join", DescribeError(err, "")))
		},
	})
	if err != nil {
		o.notes.Push(notify.Failure("Failed to Join", DescribeError(err, "")))
		return nil, err
	}
	return handle, nil
}

func (o *Opportunities) find(activityID string) (model.Activity, bool) {
	for _, a := range o.activities.Snapshot() {
		if a.ID == activityID {
			return a, true
		}
	}
	return model.Activity{}, false
}
