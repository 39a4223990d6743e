package scheduler

import (
	"context"
	"testing"
	"time"

	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"
	"storefront-workers/internal/notification"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2024, 6, 10, 23, 55, 0, 0, time.UTC)

type fakeLedger struct {
	failed      []models.Notification
	since       time.Time
	cutoff      time.Time
	deleteCount int64
}

func (f *fakeLedger) ListFailedSince(_ context.Context, since time.Time) ([]models.Notification, error) {
	f.since = since
	var out []models.Notification
	for _, n := range f.failed {
		if !n.CreatedAt.Before(since) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeLedger) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleteCount, nil
}

type stubSender struct {
	channel    models.Channel
	configured bool
	fail       map[int64]bool
	sent       []notification.Message
}

func (s *stubSender) Channel() models.Channel { return s.channel }
func (s *stubSender) Configured() bool        { return s.configured }
func (s *stubSender) Send(_ context.Context, msg notification.Message) notification.Result {
	s.sent = append(s.sent, msg)
	if s.fail[msg.NotificationID] {
		return notification.Result{Success: false, Error: "still failing"}
	}
	return notification.Result{Success: true, ExternalID: "x"}
}

type fakeDispatcher struct {
	senders map[models.Channel]notification.Sender
	alerts  map[int64][]int64
	reject  map[int64]bool
}

func (f *fakeDispatcher) Sender(ch models.Channel) (notification.Sender, bool) {
	s, ok := f.senders[ch]
	return s, ok
}

func (f *fakeDispatcher) SendLowStockAlert(_ context.Context, p *models.Product, admins []models.Principal) []notification.DispatchResult {
	if f.alerts == nil {
		f.alerts = map[int64][]int64{}
	}
	out := make([]notification.DispatchResult, 0, len(admins))
	for _, a := range admins {
		f.alerts[p.ID] = append(f.alerts[p.ID], a.ID)
		out = append(out, notification.DispatchResult{Email: &notification.Result{Success: !f.reject[a.ID]}})
	}
	return out
}

type lowStock []models.Product

func (l lowStock) ListLowStock(context.Context) ([]models.Product, error) { return l, nil }

type staffList []models.Principal

func (s staffList) ListAlertRecipients(context.Context) ([]models.Principal, error) { return s, nil }

type fakeConfirmer struct{ cutoff time.Time }

func (f *fakeConfirmer) AutoConfirmPending(_ context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return 2, nil
}

type fakeSummarizer struct{ from, to time.Time }

func (f *fakeSummarizer) Summarize(_ context.Context, from, to time.Time) (*models.OrderReport, error) {
	f.from, f.to = from, to
	return &models.OrderReport{
		Date:           from.Format("2006-01-02"),
		TotalOrders:    3,
		TotalRevenue:   decimal.RequireFromString("450.00"),
		OrdersByStatus: map[models.OrderStatus]int{models.OrderPending: 1, models.OrderDelivered: 2},
	}, nil
}

type MockIndexer struct {
	IndexDocumentFunc func(ctx context.Context, index, id string, doc interface{}) error
}

func (m *MockIndexer) IndexDocument(ctx context.Context, index, id string, doc interface{}) error {
	return m.IndexDocumentFunc(ctx, index, id, doc)
}

func newTestJobs(t *testing.T, deps Deps) *Jobs {
	j := NewJobs(deps, Windows{Retry: 24 * time.Hour, Retention: 90 * 24 * time.Hour, PendingOrder: 30 * time.Minute}, logger.NewTestLogger(t))
	j.now = func() time.Time { return fixedNow }
	return j
}

// ==========================
// Retry
// ==========================

func TestJobs_RetryFailedNotifications(t *testing.T) {
	ledger := &fakeLedger{failed: []models.Notification{
		{ID: 1, Channel: models.ChannelSMS, RecipientAddress: "+254700000001", Message: "a", CreatedAt: fixedNow.Add(-time.Hour)},
		{ID: 2, Channel: models.ChannelEmail, RecipientAddress: "a@b.c", Subject: "s", Message: "b", CreatedAt: fixedNow.Add(-23 * time.Hour)},
		{ID: 3, Channel: models.ChannelSMS, RecipientAddress: "+254700000002", Message: "c", CreatedAt: fixedNow.Add(-25 * time.Hour)},
		{ID: 4, Channel: models.ChannelSMS, RecipientAddress: "+254700000003", Message: "d", CreatedAt: fixedNow.Add(-2 * time.Hour)},
	}}
	sms := &stubSender{channel: models.ChannelSMS, configured: true, fail: map[int64]bool{4: true}}
	email := &stubSender{channel: models.ChannelEmail, configured: true}
	j := newTestJobs(t, Deps{
		Notifications: ledger,
		Dispatcher:    &fakeDispatcher{senders: map[models.Channel]notification.Sender{models.ChannelSMS: sms, models.ChannelEmail: email}},
	})

	stats, err := j.RetryFailedNotifications(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fixedNow.Add(-24*time.Hour), ledger.since)
	assert.Equal(t, RetryStats{Retried: 3, Succeeded: 2}, stats)

	require.Len(t, email.sent, 1)
	assert.Equal(t, notification.Message{NotificationID: 2, To: "a@b.c", Subject: "s", Body: "b"}, email.sent[0])
	for _, m := range sms.sent {
		assert.NotEqual(t, int64(3), m.NotificationID)
	}
}

func TestJobs_RetryFailedNotifications_SkipsUnconfiguredChannel(t *testing.T) {
	ledger := &fakeLedger{failed: []models.Notification{
		{ID: 1, Channel: models.ChannelSMS, CreatedAt: fixedNow},
		{ID: 2, Channel: models.ChannelEmail, CreatedAt: fixedNow},
	}}
	sms := &stubSender{channel: models.ChannelSMS, configured: false}
	j := newTestJobs(t, Deps{
		Notifications: ledger,
		Dispatcher:    &fakeDispatcher{senders: map[models.Channel]notification.Sender{models.ChannelSMS: sms}},
	})

	stats, err := j.RetryFailedNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetryStats{Skipped: 2}, stats)
	assert.Empty(t, sms.sent)
}

// ==========================
// Low stock
// ==========================

func TestJobs_CheckLowStockProducts(t *testing.T) {
	d := &fakeDispatcher{reject: map[int64]bool{101: true}}
	j := newTestJobs(t, Deps{
		Dispatcher: d,
		Products:   lowStock{{ID: 1, Name: "Mug"}, {ID: 2, Name: "Pen"}},
		Staff:      staffList{{ID: 100, Email: "a@b.c"}, {ID: 101, Email: "d@e.f"}},
	})

	n, err := j.CheckLowStockProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[int64][]int64{1: {100, 101}, 2: {100, 101}}, d.alerts)
}

func TestJobs_CheckLowStockProducts_NothingLow(t *testing.T) {
	d := &fakeDispatcher{}
	j := newTestJobs(t, Deps{Dispatcher: d, Products: lowStock{}, Staff: staffList{{ID: 1}}})

	n, err := j.CheckLowStockProducts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, d.alerts)
}

// ==========================
// Cleanup, pending orders, reports
// ==========================

func TestJobs_CleanupOldNotifications(t *testing.T) {
	ledger := &fakeLedger{deleteCount: 17}
	j := newTestJobs(t, Deps{Notifications: ledger})

	n, err := j.CleanupOldNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
	assert.Equal(t, fixedNow.AddDate(0, 0, -90), ledger.cutoff)
}

func TestJobs_ProcessPendingOrders(t *testing.T) {
	c := &fakeConfirmer{}
	j := newTestJobs(t, Deps{Orders: c})

	n, err := j.ProcessPendingOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, fixedNow.Add(-30*time.Minute), c.cutoff)
}

func TestJobs_GenerateOrderReport(t *testing.T) {
	s := &fakeSummarizer{}
	var indexed *models.OrderReport
	idx := &MockIndexer{IndexDocumentFunc: func(ctx context.Context, index, id string, doc interface{}) error {
		assert.Equal(t, "order-reports", index)
		assert.Equal(t, "2024-06-10", id)
		indexed = doc.(*models.OrderReport)
		return nil
	}}
	j := newTestJobs(t, Deps{Reports: s, Index: idx, ReportsIndex: "order-reports"})

	r, err := j.GenerateOrderReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), s.from)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), s.to)
	assert.Equal(t, 3, r.TotalOrders)
	assert.Equal(t, fixedNow, r.GeneratedAt)
	assert.Same(t, r, indexed)
}
