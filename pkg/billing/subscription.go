package billing

import (
	"math"
	"time"
)

// Status is the persisted subscription status.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Subscription is the single per-shop subscription row.
// Empty SubscriptionID and PendingPlan stand for null.
type Subscription struct {
	Shop              string
	Plan              string
	Status            Status
	SubscriptionID    string
	PendingPlan       string
	PendingActivation bool
	ActivatedAt       *time.Time
	TrialEndsAt       *time.Time
	CancelledAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (s *Subscription) IsActivated() bool { return s.ActivatedAt != nil }

func (s *Subscription) IsCancelled() bool { return s.Status == StatusCancelled }

// InTrialAt reports whether the trial is still running at now.
func (s *Subscription) InTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// TrialDaysRemainingAt returns the remaining trial rounded up to whole days,
// or 0 when there is no running trial.
func (s *Subscription) TrialDaysRemainingAt(now time.Time) int {
	if !s.InTrialAt(now) {
		return 0
	}
	return int(math.Ceil(s.TrialEndsAt.Sub(now).Hours() / 24))
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.ActivatedAt = cloneTime(s.ActivatedAt)
	c.TrialEndsAt = cloneTime(s.TrialEndsAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
