package plan

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sub struct {
	plan Plan
	end  *time.Time
}

func (s sub) CurrentPlan() Plan    { return s.plan }
func (s sub) TrialEnd() *time.Time { return s.end }

func at(t time.Time) *time.Time { return &t }

func TestIsInFreeTrial_Boundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	lapsed := sub{plan: FreeTrial, end: at(now.Add(-time.Second))}
	assert.False(t, IsInFreeTrial(lapsed, now))
	assert.False(t, CanPerformGatedAction(lapsed, now))

	live := sub{plan: FreeTrial, end: at(now.Add(time.Second))}
	assert.True(t, IsInFreeTrial(live, now))
	assert.True(t, CanPerformGatedAction(live, now))

	exact := sub{plan: FreeTrial, end: at(now)}
	assert.False(t, IsInFreeTrial(exact, now))
}

func TestIsInFreeTrial_RequiresPlanAndEnd(t *testing.T) {
	now := time.Now()
	assert.False(t, IsInFreeTrial(sub{plan: Starter, end: at(now.Add(time.Hour))}, now))
	assert.False(t, IsInFreeTrial(sub{plan: FreeTrial}, now))
	assert.False(t, CanPerformGatedAction(sub{plan: FreeTrial}, now))
}

func TestCanPerformGatedAction_PaidPlans(t *testing.T) {
	now := time.Now()
	for _, p := range []Plan{Starter, Professional, Enterprise} {
		assert.True(t, CanPerformGatedAction(sub{plan: p}, now), p)
	}
}

func TestTrialDaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		s    sub
		want int
	}{
		{"fresh trial", sub{plan: FreeTrial, end: at(now.AddDate(0, 0, TrialDays))}, 14},
		{"partial day rounds up", sub{plan: FreeTrial, end: at(now.Add(25 * time.Hour))}, 2},
		{"last second", sub{plan: FreeTrial, end: at(now.Add(time.Second))}, 1},
		{"lapsed", sub{plan: FreeTrial, end: at(now.Add(-time.Hour))}, 0},
		{"paid", sub{plan: Professional}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrialDaysRemaining(tt.s, now))
		})
	}
}

func TestLimits(t *testing.T) {
	trial := sub{plan: FreeTrial}
	assert.False(t, UserLimitReached(trial, 1))
	assert.True(t, UserLimitReached(trial, 2))
	assert.False(t, PatientLimitReached(trial, 4))
	assert.True(t, PatientLimitReached(trial, 5))
	assert.True(t, AppointmentLimitReached(trial, 50))

	starter := sub{plan: Starter}
	assert.False(t, UserLimitReached(starter, 4))
	assert.True(t, UserLimitReached(starter, 5))
	assert.True(t, PatientLimitReached(sub{plan: Professional}, 500))

	ent := sub{plan: Enterprise}
	assert.False(t, UserLimitReached(ent, 1_000_000))
	assert.False(t, PatientLimitReached(ent, 1_000_000))
	assert.Nil(t, Limit(Enterprise, Appointments))
}

func TestCheckCreate_DistinguishesDenials(t *testing.T) {
	now := time.Now()

	lapsed := sub{plan: FreeTrial, end: at(now.Add(-time.Minute))}
	err := CheckCreate(lapsed, Users, 0, now)
	assert.ErrorIs(t, err, ErrTrialExpired)
	assert.False(t, errors.Is(err, ErrResourceLimitReached))

	live := sub{plan: FreeTrial, end: at(now.Add(time.Hour))}
	err = CheckCreate(live, Users, 2, now)
	require.ErrorIs(t, err, ErrResourceLimitReached)
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Limit)
	assert.Equal(t, Users, le.Resource)

	assert.NoError(t, CheckCreate(live, Users, 1, now))
	assert.NoError(t, CheckCreate(sub{plan: Enterprise}, Patients, 10_000, now))
}

func TestHasFeature(t *testing.T) {
	assert.False(t, HasFeature(sub{plan: FreeTrial}, FeatureAnalytics))
	assert.False(t, HasFeature(sub{plan: Starter}, FeatureAnalytics))
	assert.True(t, HasFeature(sub{plan: Professional}, FeatureAnalytics))
	assert.True(t, HasFeature(sub{plan: Enterprise}, FeatureAnalytics))
	assert.ErrorIs(t, RequireFeature(sub{plan: Starter}, FeatureAnalytics), ErrFeatureUnavailable)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(FreeTrial, Starter))
	assert.True(t, CanTransition(Starter, Enterprise))
	assert.True(t, CanTransition(Enterprise, Starter))
	assert.False(t, CanTransition(Starter, FreeTrial))
	assert.False(t, CanTransition(FreeTrial, FreeTrial))
	assert.False(t, CanTransition(Starter, Plan("gold")))
}

func TestCatalog(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	assert.Equal(t, FreeTrial, all[0].Plan)
	assert.True(t, all[3].Price.GreaterThan(all[2].Price))
	assert.False(t, IsPaid(FreeTrial))
	assert.True(t, IsPaid(Starter))
	assert.False(t, Valid(Plan("")))
}

func TestPlanForPriceID(t *testing.T) {
	ids := PriceIDs{Starter: "price_s", Enterprise: "price_e"}
	p, ok := ids.PlanForPriceID("price_e")
	assert.True(t, ok)
	assert.Equal(t, Enterprise, p)
	_, ok = ids.PlanForPriceID("")
	assert.False(t, ok)
	_, ok = ids.PlanForPriceID("price_x")
	assert.False(t, ok)
}
