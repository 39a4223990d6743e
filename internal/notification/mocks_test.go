package notification

import (
	"context"
	"sync"
	"time"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// ==========================
// Mock Providers
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

type MockSMSProvider struct {
	SendSMSFunc func(ctx context.Context, to, message string) (string, error)
}

func (m *MockSMSProvider) SendSMS(ctx context.Context, to, message string) (string, error) {
	return m.SendSMSFunc(ctx, to, message)
}

// ==========================
// In-memory ledger and templates
// ==========================

type memoryLedger struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Notification
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{rows: map[int64]*models.Notification{}}
}

func (l *memoryLedger) Create(_ context.Context, n *models.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	n.ID = l.nextID
	n.Status = models.NotificationPending
	n.CreatedAt = time.Now()
	cp := *n
	l.rows[n.ID] = &cp
	return nil
}

func (l *memoryLedger) MarkSent(_ context.Context, id int64, externalID string, sentAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rows[id]; ok {
		r.Status = models.NotificationSent
		r.ExternalID = externalID
		r.SentAt = &sentAt
		r.ErrorMessage = ""
	}
	return nil
}

func (l *memoryLedger) MarkFailed(_ context.Context, id int64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rows[id]; ok {
		r.Status = models.NotificationFailed
		r.ErrorMessage = reason
	}
	return nil
}

func (l *memoryLedger) all() []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Notification, 0, len(l.rows))
	for i := int64(1); i <= l.nextID; i++ {
		if r, ok := l.rows[i]; ok {
			out = append(out, *r)
		}
	}
	return out
}

func (l *memoryLedger) byChannel(ch models.Channel) *models.Notification {
	for _, r := range l.all() {
		if r.Channel == ch {
			r := r
			return &r
		}
	}
	return nil
}

type staticTemplates map[string]*models.NotificationTemplate

func (s staticTemplates) add(t *models.NotificationTemplate) staticTemplates {
	s[string(t.NotificationType)+"/"+string(t.Channel)] = t
	return s
}

func (s staticTemplates) GetActive(_ context.Context, nt models.NotificationType, ch models.Channel) (*models.NotificationTemplate, error) {
	t, ok := s[string(nt)+"/"+string(ch)]
	if !ok || !t.IsActive {
		return nil, apperrors.NewTemplateNotFoundError(string(nt), string(ch))
	}
	return t, nil
}

func (s staticTemplates) Get(ctx context.Context, nt models.NotificationType, ch models.Channel) (*models.NotificationTemplate, error) {
	return s.GetActive(ctx, nt, ch)
}
