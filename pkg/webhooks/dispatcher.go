package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/lumen/pkg/async"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/quota"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	recordTimeout   = 5 * time.Second
	maxResponseRead = 64 << 10
)

// DispatcherConfig tunes delivery
type DispatcherConfig struct {
	// Timeout bounds each HTTP attempt
	Timeout time.Duration
	Retry   RetryConfig
	// DisableThreshold is the consecutive failure count that deactivates a webhook
	DisableThreshold int
	// Concurrency bounds parallel deliveries of one event
	Concurrency int
	// DispatchBudget bounds a whole fire-and-forget fan-out, retries included
	DispatchBudget time.Duration
	UserAgent      string
}

// DefaultDispatcherConfig returns the default delivery settings
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout:          10 * time.Second,
		Retry:            DefaultRetryConfig(),
		DisableThreshold: 10,
		Concurrency:      8,
		DispatchBudget:   2 * time.Minute,
		UserAgent:        "Lumen-Webhooks/1.0",
	}
}

// Dispatcher signs and posts events to every subscribed webhook
type Dispatcher struct {
	store    Store
	runner   *async.Runner
	client   *http.Client
	retry    *RetryPolicy
	throttle ratelimit.Checker
	config   DispatcherConfig
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the outbound client
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithThrottle limits deliveries per webhook id
func WithThrottle(throttle ratelimit.Checker) DispatcherOption {
	return func(d *Dispatcher) { d.throttle = throttle }
}

func WithLogger(logger logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(metrics *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// NewDispatcher creates a Dispatcher. Background deliveries run on runner.
func NewDispatcher(store Store, runner *async.Runner, config DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.DisableThreshold <= 0 {
		config.DisableThreshold = defaults.DisableThreshold
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.DispatchBudget <= 0 {
		config.DispatchBudget = defaults.DispatchBudget
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	d := &Dispatcher{
		store:  store,
		runner: runner,
		retry:  NewRetryPolicy(config.Retry),
		config: config,
		logger: logrus.StandardLogger(),
		tracer: otel.Tracer("github.com/platinummonkey/lumen/pkg/webhooks"),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// a redirect is not an acknowledgement
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return d
}

// Deliver sends p to the organization's subscribed webhooks in the
// background and returns immediately. Nothing about the outcome reaches the
// caller; it is visible only on each webhook's status fields.
func (d *Dispatcher) Deliver(ctx context.Context, orgID string, p Payload) {
	d.runner.Go(ctx, d.config.DispatchBudget, "webhook dispatch "+string(p.Event()), func(ctx context.Context) error {
		_, err := d.DeliverSync(ctx, orgID, p)
		return err
	})
}

// DeliverSync sends p to every active webhook of orgID subscribed to its
// event and waits for all of them. One receiver failing never affects the
// others. The error is non-nil only when nothing could be attempted.
func (d *Dispatcher) DeliverSync(ctx context.Context, orgID string, p Payload) ([]*DeliveryAttempt, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", p.Event(), err)
	}

	hooks, err := d.store.ListActiveForEvent(ctx, orgID, p.Event())
	if err != nil {
		return nil, err
	}
	if len(hooks) == 0 {
		return nil, nil
	}

	body, err := Encode(p, d.now())
	if err != nil {
		return nil, err
	}

	indexes := make([]int, len(hooks))
	for i := range indexes {
		indexes[i] = i
	}
	attempts := make([]*DeliveryAttempt, len(hooks))
	errs := async.Settle(ctx, indexes, d.config.Concurrency, func(ctx context.Context, i int) error {
		attempts[i] = d.deliver(ctx, hooks[i], p.Event(), body)
		return nil
	})
	for i, err := range errs {
		if attempts[i] == nil {
			attempts[i] = &DeliveryAttempt{
				ID:        uuid.NewString(),
				WebhookID: hooks[i].ID,
				Event:     p.Event(),
				Status:    DeliveryStatusFailed,
				Error:     fmt.Sprint(err),
				err:       err,
			}
		}
	}
	return attempts, nil
}

// SendTest delivers a webhook_test event to one webhook and reports the
// outcome. It takes the same path as any other delivery, so its result
// counts toward the webhook's failure tracking.
func (d *Dispatcher) SendTest(ctx context.Context, orgID, id string) (*DeliveryAttempt, error) {
	hook, err := d.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	body, err := Encode(WebhookTest{
		WebhookID: hook.ID,
		Message:   "This is a test event from Lumen",
	}, d.now())
	if err != nil {
		return nil, err
	}
	return d.deliver(ctx, hook, EventWebhookTest, body), nil
}

// NotifyLimitReached delivers a usage_limit_reached event in the background
func (d *Dispatcher) NotifyLimitReached(ctx context.Context, n quota.LimitReached) {
	d.Deliver(ctx, n.OrgID, UsageLimitReached{
		Resource: string(n.Resource),
		Period:   string(n.Period),
		Used:     n.Used,
		Limit:    n.Limit,
	})
}

// deliver makes one delivery, with retries, and records its single outcome
func (d *Dispatcher) deliver(ctx context.Context, hook *Webhook, event EventType, body []byte) *DeliveryAttempt {
	ctx, span := d.tracer.Start(ctx, "webhooks.deliver", trace.WithAttributes(
		attribute.String("webhook.id", hook.ID),
		attribute.String("webhook.event", string(event)),
	))
	defer span.End()

	start := d.now()
	a := &DeliveryAttempt{
		ID:        uuid.NewString(),
		WebhookID: hook.ID,
		Event:     event,
		StartedAt: start,
	}
	logger := observability.LoggerFromContext(ctx, d.logger).WithFields(logrus.Fields{
		"org_id":     hook.OrgID,
		"webhook_id": hook.ID,
		"event":      event,
		"delivery":   a.ID,
	})

	if d.throttle != nil {
		res, err := d.throttle.Allow(ctx, hook.ID)
		if err == nil && !res.Allowed {
			a.Status = DeliveryStatusThrottled
			a.err = res.Err(d.throttle.Config().Name, hook.ID)
			a.Error = a.err.Error()
			d.metrics.ObserveDelivery(string(event), string(a.Status), 0)
			span.SetStatus(codes.Error, "throttled")
			logger.Warn("Webhook delivery throttled")

			recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
			defer cancel()
			if err := d.store.RecordThrottled(recordCtx, hook.ID, Outcome{Error: a.Error, At: d.now()}); err != nil {
				logger.WithError(err).Error("Failed to record throttled webhook delivery")
			}
			return a
		}
	}

	for attempt := 1; ; attempt++ {
		a.Attempts = attempt
		a.StatusCode, a.err = d.send(ctx, hook, event, body)
		if a.err == nil && a.StatusCode >= 200 && a.StatusCode < 300 {
			a.Status = DeliveryStatusSuccess
			break
		}
		if !d.retry.ShouldRetry(attempt, a.StatusCode, a.err) {
			break
		}
		if err := d.sleep(ctx, d.retry.NextRetryDelay(attempt)); err != nil {
			a.err = err
			break
		}
	}
	a.Duration = d.now().Sub(start)
	span.SetAttributes(
		attribute.Int("http.status_code", a.StatusCode),
		attribute.Int("webhook.attempts", a.Attempts),
	)

	// the outcome is recorded even when the dispatch budget ran out
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if a.Status == DeliveryStatusSuccess {
		if err := d.store.RecordSuccess(recordCtx, hook.ID, Outcome{StatusCode: a.StatusCode, At: d.now()}); err != nil {
			logger.WithError(err).Error("Failed to record webhook success")
		}
		d.metrics.ObserveDelivery(string(event), string(a.Status), a.Duration)
		return a
	}

	a.Status = DeliveryStatusFailed
	a.Error = describeFailure(a.StatusCode, a.err)
	span.SetStatus(codes.Error, a.Error)
	d.metrics.ObserveDelivery(string(event), string(a.Status), a.Duration)

	disabled, err := d.store.RecordFailure(recordCtx, hook.ID, d.config.DisableThreshold, Outcome{
		StatusCode: a.StatusCode,
		Error:      a.Error,
		At:         d.now(),
	})
	if err != nil {
		logger.WithError(err).Error("Failed to record webhook failure")
		return a
	}
	a.Disabled = disabled

	entry := logger.WithFields(logrus.Fields{
		"status_code": a.StatusCode,
		"attempts":    a.Attempts,
		"error":       a.Error,
	})
	if disabled {
		d.metrics.WebhookDisabled()
		entry.WithField("threshold", d.config.DisableThreshold).Warn("Webhook disabled after consecutive failures")
	} else {
		entry.Warn("Webhook delivery failed")
	}
	return a
}

// send posts body once. A non-nil error means no HTTP response was received.
func (d *Dispatcher) send(ctx context.Context, hook *Webhook, event EventType, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.config.UserAgent)
	req.Header.Set(EventHeader, string(event))
	req.Header.Set(SignatureHeader, Sign(body, hook.Secret))
	req.Header.Set(DeliveryHeader, uuid.NewString())

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseRead))

	return resp.StatusCode, nil
}

func describeFailure(status int, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case err != nil:
		return err.Error()
	default:
		return fmt.Sprintf("receiver returned status %d", status)
	}
}
