// Package plan decides, from a tenant's plan and trial window, whether an
// operation is currently allowed. Everything here is pure; callers supply the
// clock and the current resource counts.
package plan

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrTrialExpired blocks gated actions once a free trial has lapsed.
	ErrTrialExpired = errors.New("free trial has expired")
	// ErrResourceLimitReached is the softer denial: upgrade to add more.
	ErrResourceLimitReached = errors.New("plan resource limit reached")
	// ErrFeatureUnavailable means the tier does not include the feature.
	ErrFeatureUnavailable = errors.New("feature not included in plan")
)

// LimitError carries the ceiling that was hit. It matches
// ErrResourceLimitReached with errors.Is.
type LimitError struct {
	Plan     Plan
	Resource Resource
	Limit    int
	Current  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s plan allows at most %d %s", e.Plan, e.Limit, e.Resource)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrResourceLimitReached
}

// Subscriber is the view of a tenant the gate needs.
type Subscriber interface {
	CurrentPlan() Plan
	TrialEnd() *time.Time
}

// IsInFreeTrial: plan is free_trial, the trial end is set, and now is before it.
func IsInFreeTrial(s Subscriber, now time.Time) bool {
	if s.CurrentPlan() != FreeTrial {
		return false
	}
	end := s.TrialEnd()
	if end == nil {
		return false
	}
	return now.Before(*end)
}

// TrialDaysRemaining rounds partial days up; zero outside an active trial.
func TrialDaysRemaining(s Subscriber, now time.Time) int {
	if !IsInFreeTrial(s, now) {
		return 0
	}
	days := math.Ceil(s.TrialEnd().Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// CanPerformGatedAction is false once a free trial has lapsed with no paid
// plan. A free_trial tenant with no trial end counts as lapsed.
func CanPerformGatedAction(s Subscriber, now time.Time) bool {
	if IsPaid(s.CurrentPlan()) {
		return true
	}
	return IsInFreeTrial(s, now)
}

// LimitReached reports whether current has met the ceiling for r.
func LimitReached(s Subscriber, r Resource, current int) bool {
	max := Limit(s.CurrentPlan(), r)
	if max == nil {
		return false
	}
	return current >= *max
}

func UserLimitReached(s Subscriber, current int) bool {
	return LimitReached(s, Users, current)
}

func PatientLimitReached(s Subscriber, current int) bool {
	return LimitReached(s, Patients, current)
}

func AppointmentLimitReached(s Subscriber, current int) bool {
	return LimitReached(s, Appointments, current)
}

// CheckCreate is consulted before adding one more r. A lapsed trial is
// reported ahead of any limit.
func CheckCreate(s Subscriber, r Resource, current int, now time.Time) error {
	if !CanPerformGatedAction(s, now) {
		return ErrTrialExpired
	}
	if LimitReached(s, r, current) {
		return &LimitError{
			Plan:     s.CurrentPlan(),
			Resource: r,
			Limit:    *Limit(s.CurrentPlan(), r),
			Current:  current,
		}
	}
	return nil
}

// HasFeature reports whether the tenant's tier includes f.
func HasFeature(s Subscriber, f Feature) bool {
	d, ok := Lookup(s.CurrentPlan())
	if !ok {
		return false
	}
	for _, have := range d.Features {
		if have == f {
			return true
		}
	}
	return false
}

// RequireFeature is HasFeature as an error.
func RequireFeature(s Subscriber, f Feature) error {
	if !HasFeature(s, f) {
		return fmt.Errorf("%w: %s", ErrFeatureUnavailable, f)
	}
	return nil
}

// CanTransition: free_trial may move to any paid tier, paid tiers may move
// between each other, and nothing moves back into free_trial.
func CanTransition(from, to Plan) bool {
	if !IsPaid(to) {
		return false
	}
	return Valid(from)
}
