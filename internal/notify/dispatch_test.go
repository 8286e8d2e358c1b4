package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify"
	"github.com/finflow/finqueue/internal/notify/adapter"
	"github.com/finflow/finqueue/internal/queue"
	"github.com/finflow/finqueue/internal/ratelimiter"
	"github.com/finflow/finqueue/internal/repository"
	"github.com/finflow/finqueue/internal/ws"
)

// fakeAdapter records deliveries and plays back a scripted outcome.
type fakeAdapter struct {
	sent    []adapter.Delivery
	receipt adapter.Receipt
	err     error
}

func (f *fakeAdapter) Deliver(_ context.Context, d adapter.Delivery) (*adapter.Receipt, error) {
	f.sent = append(f.sent, d)
	if f.err != nil {
		return nil, f.err
	}
	r := f.receipt
	if r.Status == "" {
		r.Status = domain.DeliverySent
	}
	return &r, nil
}

type fixture struct {
	jobStore    *repository.MemoryJobStore
	notifyStore *repository.MemoryNotifyStore
	registry    *queue.Registry
	manager     *queue.Manager
	svc         *notify.Service
	push        *fakeAdapter
	email       *fakeAdapter
	sms         *fakeAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		jobStore:    repository.NewMemoryJobStore(),
		notifyStore: repository.NewMemoryNotifyStore(),
		registry:    queue.NewRegistry(),
		push:        &fakeAdapter{},
		email:       &fakeAdapter{},
		sms:         &fakeAdapter{},
	}
	f.manager = queue.NewManager(f.jobStore, f.registry,
		queue.Defaults{MaxAttempts: 3, BackoffBase: time.Millisecond},
		queue.Hooks{}, zap.NewNop())

	f.svc = notify.NewService(f.manager, f.notifyStore, ws.NewHub(zap.NewNop()),
		map[domain.Channel]adapter.Adapter{
			domain.ChannelPush:  f.push,
			domain.ChannelEmail: f.email,
			domain.ChannelSMS:   f.sms,
		},
		ratelimiter.New(1000), nil, zap.NewNop())
	f.svc.Register(f.registry)
	return f
}

// runType looks up a registered handler and invokes it directly with the
// given job, the way a worker slot would after claiming.
func (f *fixture) runType(t *testing.T, jobType string, job *domain.Job) (any, error) {
	t.Helper()
	def, ok := f.registry.Lookup(jobType)
	if !ok {
		t.Fatalf("type %s not registered", jobType)
	}
	return def.Handle(context.Background(), job, func(int) {})
}

// claim pulls the next job from a queue, failing the test when it is empty.
func (f *fixture) claim(t *testing.T, queueName string) *domain.Job {
	t.Helper()
	j, err := f.jobStore.ClaimNext(context.Background(), queueName, "test-worker")
	if err != nil {
		t.Fatal(err)
	}
	if j == nil {
		t.Fatalf("queue %s is empty", queueName)
	}
	return j
}

func (f *fixture) submit(t *testing.T, req domain.NotificationRequest) *domain.Job {
	t.Helper()
	j, err := f.svc.Submit(context.Background(), &req)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func (f *fixture) rows(t *testing.T, userID string) []*domain.DeliveryResult {
	t.Helper()
	rows, _, err := f.notifyStore.ListDeliveries(context.Background(), userID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

// TestFanOut_PreferenceDisablesChannel submits a budget alert over push and
// email for a user whose email preference is off. Exactly one push sub-job
// is produced, and after delivery the history shows exactly one push row.
func TestFanOut_PreferenceDisablesChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prefs := domain.DefaultPreferences("u1")
	prefs.Types[domain.TypeBudgetAlert] = domain.ChannelPrefs{Push: true, Email: false}
	if err := f.notifyStore.SavePreferences(ctx, prefs); err != nil {
		t.Fatal(err)
	}

	job := f.submit(t, domain.NotificationRequest{
		Type:       domain.TypeBudgetAlert,
		Title:      "Over budget",
		Message:    "Dining budget exceeded",
		Channels:   []domain.Channel{domain.ChannelPush, domain.ChannelEmail},
		Recipients: []string{"u1"},
	})

	result, err := f.runType(t, notify.TypeSendNotification, job)
	if err != nil {
		t.Fatal(err)
	}
	fanOut := result.(notify.FanOutResult)
	if fanOut.Enqueued != 1 || fanOut.Skipped != 1 {
		t.Fatalf("enqueued=%d skipped=%d, want 1/1", fanOut.Enqueued, fanOut.Skipped)
	}

	// The push queue has the sub-job; the email queue must be empty.
	pushJob := f.claim(t, domain.QueuePush)
	if empty, _ := f.jobStore.ClaimNext(ctx, domain.QueueEmail, "w"); empty != nil {
		t.Fatal("email sub-job enqueued despite disabled preference")
	}

	// Deliver the push sub-job (one registered device).
	if _, err := f.svc.RegisterDevice(ctx, &domain.RegisterDeviceRequest{
		UserID: "u1", DeviceID: "d1", Token: "tok-1", Platform: "ios",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.runType(t, notify.TypeDeliverPush, pushJob); err != nil {
		t.Fatal(err)
	}

	rows := f.rows(t, "u1")
	if len(rows) != 1 {
		t.Fatalf("delivery rows = %d, want exactly 1", len(rows))
	}
	if rows[0].Channel != domain.ChannelPush || rows[0].Status != domain.DeliverySent {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

// TestFanOut_MinAmountThreshold verifies small transactions are filtered by
// the per-type amount threshold.
func TestFanOut_MinAmountThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prefs := domain.DefaultPreferences("u1")
	prefs.Types[domain.TypeTransactionAlert] = domain.ChannelPrefs{Push: true, MinAmount: 100}
	if err := f.notifyStore.SavePreferences(ctx, prefs); err != nil {
		t.Fatal(err)
	}

	job := f.submit(t, domain.NotificationRequest{
		Type:       domain.TypeTransactionAlert,
		Title:      "Card charge",
		Message:    "Coffee shop",
		Channels:   []domain.Channel{domain.ChannelPush},
		Recipients: []string{"u1"},
		Data:       map[string]any{"amount": 4.5},
	})

	result, err := f.runType(t, notify.TypeSendNotification, job)
	if err != nil {
		t.Fatal(err)
	}
	if fanOut := result.(notify.FanOutResult); fanOut.Enqueued != 0 || fanOut.Skipped != 1 {
		t.Fatalf("below-threshold amount not filtered: %+v", fanOut)
	}
}

// TestFanOut_LazyDefaultPreferences verifies a first-time recipient gets the
// default matrix created and persisted during fan-out.
func TestFanOut_LazyDefaultPreferences(t *testing.T) {
	f := newFixture(t)

	job := f.submit(t, domain.NotificationRequest{
		Type:       domain.TypeMarketNews,
		Title:      "Markets up",
		Message:    "Index gained 2%",
		Channels:   []domain.Channel{domain.ChannelPush, domain.ChannelEmail},
		Recipients: []string{"fresh-user"},
	})

	result, err := f.runType(t, notify.TypeSendNotification, job)
	if err != nil {
		t.Fatal(err)
	}
	// Market news defaults to email only.
	if fanOut := result.(notify.FanOutResult); fanOut.Enqueued != 1 || fanOut.Skipped != 1 {
		t.Fatalf("default matrix not applied: %+v", fanOut)
	}

	if _, err := f.notifyStore.GetPreferences(context.Background(), "fresh-user"); err != nil {
		t.Fatalf("defaults were not persisted: %v", err)
	}
}

func TestSubmit_SchedulesFutureDelivery(t *testing.T) {
	f := newFixture(t)

	at := time.Now().Add(time.Hour)
	job := f.submit(t, domain.NotificationRequest{
		Type:         domain.TypePaymentReminder,
		Title:        "Bill due",
		Message:      "Electric bill due tomorrow",
		Channels:     []domain.Channel{domain.ChannelEmail},
		Recipients:   []string{"u1"},
		ScheduledFor: &at,
	})

	if job.Type != notify.TypeScheduledNotification {
		t.Fatalf("type = %s, want scheduled-notification", job.Type)
	}
	if job.ReadyAt.Before(time.Now().Add(55 * time.Minute)) {
		t.Fatalf("ready_at = %s, want ~1h out", job.ReadyAt)
	}

	// When due, the scheduling job re-enqueues an immediate send.
	if _, err := f.runType(t, notify.TypeScheduledNotification, job); err != nil {
		t.Fatal(err)
	}
	send := f.claim(t, domain.QueueNotifications)
	if send.Type != notify.TypeSendNotification {
		t.Fatalf("re-enqueued type = %s, want send-notification", send.Type)
	}

	var req domain.NotificationRequest
	if err := json.Unmarshal(send.Payload, &req); err != nil {
		t.Fatal(err)
	}
	if req.ScheduledFor != nil {
		t.Fatal("re-enqueued request must not reschedule itself")
	}
}

func TestSubmit_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), &domain.NotificationRequest{
		Type:    domain.TypeBudgetAlert,
		Title:   "x",
		Message: "y",
		// no channels, no recipients
	})
	if !errors.Is(err, domain.ErrNoChannels) {
		t.Fatalf("got %v, want ErrNoChannels", err)
	}
}
