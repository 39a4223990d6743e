package notification

import (
	"context"
	"fmt"
	"time"

	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/common/metrics"
	"storefront-workers/internal/models"
)

// Message is one outbound notification. NotificationID, when non-zero,
// names the ledger row the sender updates with the outcome.
type Message struct {
	NotificationID int64
	Type           models.NotificationType
	To             string
	Subject        string
	Body           string
	HTML           string
}

// Result is the uniform outcome of a send attempt.
type Result struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"externalId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Sender delivers a Message on one channel. Send never returns an error:
// every failure is reported through Result.
type Sender interface {
	Channel() models.Channel
	Configured() bool
	Send(ctx context.Context, msg Message) Result
}

// Ledger is the slice of the notification store a sender writes to.
type Ledger interface {
	MarkSent(ctx context.Context, id int64, externalID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// deliverer is the part shared by every channel: timeout, panic capture,
// ledger update and metrics around a provider call.
type deliverer struct {
	channel models.Channel
	ledger  Ledger
	timeout time.Duration
	logger  logger.Logger
	now     func() time.Time
}

func (d *deliverer) deliver(ctx context.Context, msg Message, call func(ctx context.Context) (string, error)) (res Result) {
	start := d.now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Success: false, Error: fmt.Sprintf("provider panic: %v", r)}
		}
		metrics.NotificationSendDuration.WithLabelValues(string(d.channel)).Observe(time.Since(start).Seconds())
		d.record(ctx, msg, res)
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	externalID, err := call(callCtx)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, ExternalID: externalID}
}

// fail reports a failure that never reached the provider.
func (d *deliverer) fail(ctx context.Context, msg Message, reason string) Result {
	res := Result{Success: false, Error: reason}
	d.record(ctx, msg, res)
	return res
}

func (d *deliverer) record(ctx context.Context, msg Message, res Result) {
	if res.Success {
		metrics.NotificationsSent.WithLabelValues(string(d.channel), string(msg.Type)).Inc()
	} else {
		metrics.NotificationsFailed.WithLabelValues(string(d.channel), "provider").Inc()
	}

	id := msg.NotificationID

	if id == 0 || d.ledger == nil {
		return
	}

	// the provider call may have used up ctx; the ledger write gets its own budget
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	if res.Success {
		err = d.ledger.MarkSent(writeCtx, id, res.ExternalID, d.now())
	} else {
		err = d.ledger.MarkFailed(writeCtx, id, res.Error)
	}
	if err != nil {
		d.logger.Error("failed to record notification outcome", map[string]interface{}{
			"notificationId": id,
			"success":        res.Success,
			"error":          err,
		})
	}
}
