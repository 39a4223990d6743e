package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

// TemplateSource is the persistent template lookup.
type TemplateSource interface {
	GetActive(ctx context.Context, notificationType models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error)
}

// TemplateStore resolves templates through a Redis read-through cache.
// A nil cache disables caching; cache failures fall back to the source.
type TemplateStore struct {
	source TemplateSource
	cache  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewTemplateStore(source TemplateSource, cache *redis.Client, ttl time.Duration, log logger.Logger) *TemplateStore {
	return &TemplateStore{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: log.Named("templates"),
	}
}

func templateCacheKey(notificationType models.NotificationType, channel models.Channel) string {
	return fmt.Sprintf("template:%s:%s", notificationType, channel)
}

// Get returns the active template for (type, channel). A missing or inactive
// template yields a TEMPLATE_NOT_FOUND error.
func (s *TemplateStore) Get(ctx context.Context, notificationType models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error) {
	key := templateCacheKey(notificationType, channel)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var t models.NotificationTemplate
			if jsonErr := json.Unmarshal(raw, &t); jsonErr == nil {
				return &t, nil
			}
		case err != redis.Nil:
			s.logger.Warn("template cache read failed", map[string]interface{}{"key": key, "error": err})
		}
	}

	t, err := s.source.GetActive(ctx, notificationType, channel)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(t); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				s.logger.Warn("template cache write failed", map[string]interface{}{"key": key, "error": err})
			}
		}
	}
	return t, nil
}

// Invalidate drops the cached copy after a template edit.
func (s *TemplateStore) Invalidate(ctx context.Context, notificationType models.NotificationType, channel models.Channel) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, templateCacheKey(notificationType, channel)).Err(); err != nil {
		return apperrors.NewCacheError("invalidate_template", err)
	}
	return nil
}

// Rendered is a template with its placeholders substituted.
type Rendered struct {
	Subject string
	Body    string
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render substitutes every {key} in subject and body with fmt.Sprint(vars[key]).
// Keys missing from vars are left in the output verbatim.
func Render(t *models.NotificationTemplate, vars map[string]interface{}) Rendered {
	return Rendered{
		Subject: substitute(t.Subject, vars, nil),
		Body:    substitute(t.Message, vars, nil),
	}
}

// RenderStrict is Render but fails when any placeholder has no value.
func RenderStrict(t *models.NotificationTemplate, vars map[string]interface{}) (Rendered, error) {
	missing := make(map[string]struct{})
	r := Rendered{
		Subject: substitute(t.Subject, vars, missing),
		Body:    substitute(t.Message, vars, missing),
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Rendered{}, apperrors.NewTemplateRenderFailedError(keys)
	}
	return r, nil
}

func substitute(text string, vars map[string]interface{}, missing map[string]struct{}) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := match[1 : len(match)-1]
		v, ok := vars[key]
		if !ok {
			if missing != nil {
				missing[key] = struct{}{}
			}
			return match
		}
		return fmt.Sprint(v)
	})
}
