package notification

import (
	"context"
	"testing"
	"time"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		message     string
		vars        map[string]interface{}
		wantSubject string
		wantBody    string
	}{
		{
			name:     "order confirmation sms",
			message:  "Order {order_number} confirmed, total {order_total}",
			vars:     map[string]interface{}{"order_number": "ORD-AB12CD34", "order_total": "150.00"},
			wantBody: "Order ORD-AB12CD34 confirmed, total 150.00",
		},
		{
			name:        "subject and body",
			subject:     "Hi {customer_name}",
			message:     "{order_items} items",
			vars:        map[string]interface{}{"customer_name": "Jane", "order_items": 3},
			wantSubject: "Hi Jane",
			wantBody:    "3 items",
		},
		{
			name:     "unknown placeholder left verbatim",
			message:  "Hello {customer_name}, code {promo}",
			vars:     map[string]interface{}{"customer_name": "Jane"},
			wantBody: "Hello Jane, code {promo}",
		},
		{
			name:     "repeated placeholder",
			message:  "{x}-{x}",
			vars:     map[string]interface{}{"x": "a"},
			wantBody: "a-a",
		},
		{
			name:     "braces without identifier untouched",
			message:  "json {} and { spaced }",
			vars:     map[string]interface{}{},
			wantBody: "json {} and { spaced }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Render(&models.NotificationTemplate{Subject: tt.subject, Message: tt.message}, tt.vars)
			assert.Equal(t, tt.wantSubject, r.Subject)
			assert.Equal(t, tt.wantBody, r.Body)
		})
	}
}

func TestRenderStrict(t *testing.T) {
	tmpl := &models.NotificationTemplate{Subject: "{b} for {a}", Message: "Hello {a} {c}"}

	_, err := RenderStrict(tmpl, map[string]interface{}{"a": "x"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTemplateRenderFailed))
	assert.Contains(t, err.Error(), "b, c")

	r, err := RenderStrict(tmpl, map[string]interface{}{"a": "x", "b": "y", "c": "z"})
	require.NoError(t, err)
	assert.Equal(t, "y for x", r.Subject)
	assert.Equal(t, "Hello x z", r.Body)
}

// ==========================
// Template store
// ==========================

type countingSource struct {
	staticTemplates
	calls int
}

func (c *countingSource) GetActive(ctx context.Context, nt models.NotificationType, ch models.Channel) (*models.NotificationTemplate, error) {
	c.calls++
	return c.staticTemplates.GetActive(ctx, nt, ch)
}

func TestTemplateStore_ReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	src := &countingSource{staticTemplates: staticTemplates{}.add(&models.NotificationTemplate{
		ID: 7, NotificationType: models.TypeWelcome, Channel: models.ChannelEmail,
		Subject: "Welcome", Message: "Hi {customer_name}", IsActive: true,
	})}
	store := NewTemplateStore(src, rdb, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	first, err := store.Get(ctx, models.TypeWelcome, models.ChannelEmail)
	require.NoError(t, err)
	second, err := store.Get(ctx, models.TypeWelcome, models.ChannelEmail)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first.Message, second.Message)
	assert.True(t, mr.Exists("template:welcome:email"))

	require.NoError(t, store.Invalidate(ctx, models.TypeWelcome, models.ChannelEmail))
	assert.False(t, mr.Exists("template:welcome:email"))

	_, err = store.Get(ctx, models.TypeWelcome, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestTemplateStore_NotFoundIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewTemplateStore(staticTemplates{}, rdb, time.Minute, logger.NewTestLogger(t))

	_, err := store.Get(context.Background(), models.TypeOrderShipped, models.ChannelSMS)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTemplateNotFound)
	assert.False(t, mr.Exists("template:order_shipped:sms"))
}

func TestTemplateStore_CacheDownFallsBackToSource(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	src := staticTemplates{}.add(&models.NotificationTemplate{
		NotificationType: models.TypeWelcome, Channel: models.ChannelSMS, Message: "hi", IsActive: true,
	})
	store := NewTemplateStore(src, rdb, time.Minute, logger.NewTestLogger(t))

	tmpl, err := store.Get(context.Background(), models.TypeWelcome, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "hi", tmpl.Message)
}
