package domain_test

import (
	"testing"
	"time"

	"github.com/finflow/finqueue/internal/domain"
)

func TestBackoffPolicy_ExponentialDoubling(t *testing.T) {
	b := domain.BackoffPolicy{Kind: domain.BackoffExponential, BaseDelay: 5 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
	}
	for _, c := range cases {
		if got := b.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}

// TestBackoffPolicy_Cap verifies the exponential curve never exceeds the
// ten-minute ceiling, no matter how many attempts accumulate.
func TestBackoffPolicy_Cap(t *testing.T) {
	b := domain.BackoffPolicy{Kind: domain.BackoffExponential, BaseDelay: time.Minute}
	if got := b.Delay(30); got != 10*time.Minute {
		t.Fatalf("Delay(30) = %s, want capped 10m", got)
	}
}

func TestBackoffPolicy_Fixed(t *testing.T) {
	b := domain.BackoffPolicy{Kind: domain.BackoffFixed, BaseDelay: 3 * time.Second}
	for _, attempt := range []int{1, 2, 5} {
		if got := b.Delay(attempt); got != 3*time.Second {
			t.Errorf("Delay(%d) = %s, want 3s", attempt, got)
		}
	}
}

func TestBackoffPolicy_AttemptFloor(t *testing.T) {
	b := domain.BackoffPolicy{Kind: domain.BackoffExponential, BaseDelay: time.Second}
	if got := b.Delay(0); got != time.Second {
		t.Fatalf("Delay(0) = %s, want base delay", got)
	}
}

func TestJobState_Transitions(t *testing.T) {
	for _, s := range []domain.JobState{domain.StateCompleted, domain.StateDeadLettered} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.Claimable() {
			t.Errorf("%s should not be claimable", s)
		}
	}
	for _, s := range []domain.JobState{domain.StateWaiting, domain.StateFailed} {
		if !s.Claimable() {
			t.Errorf("%s should be claimable", s)
		}
	}
	if domain.StateActive.Claimable() || domain.StateActive.Terminal() {
		t.Error("active is neither claimable nor terminal")
	}
}

func TestPriority_WeightRoundTrip(t *testing.T) {
	for _, p := range []domain.Priority{domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow} {
		if got := domain.PriorityFromWeight(p.Weight()); got != p {
			t.Errorf("round trip for %s gave %s", p, got)
		}
	}
}

func TestStatusView_StripsClaimMetadata(t *testing.T) {
	worker := "w1"
	now := time.Now().UTC()
	j := &domain.Job{
		ID:        "j1",
		Queue:     domain.QueueCalculations,
		Type:      "compound-interest",
		State:     domain.StateActive,
		Attempts:  2,
		ClaimedBy: &worker,
		ClaimedAt: &now,
	}

	v := j.StatusView()
	if v.JobID != "j1" || v.Status != domain.StateActive || v.Attempts != 2 {
		t.Fatalf("unexpected view: %+v", v)
	}
}
