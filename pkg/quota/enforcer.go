package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/orgs"
	"github.com/platinummonkey/lumen/pkg/usage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const rollbackTimeout = 5 * time.Second

// Decision is the outcome of a reservation. When Allowed is true the units
// are already recorded and must be rolled back if the protected operation
// fails. CurrentUsage is the count after the reservation, or the unchanged
// count on denial.
type Decision struct {
	OrgID        string             `json:"-"`
	Period       usage.Period       `json:"period"`
	Resource     usage.ResourceKind `json:"resource"`
	Amount       int64              `json:"amount"`
	Allowed      bool               `json:"allowed"`
	CurrentUsage int64              `json:"current_usage"`
	Limit        int64              `json:"limit"`
	IsOverage    bool               `json:"is_overage"`
	Unlimited    bool               `json:"unlimited"`
	Code         string             `json:"code,omitempty"`
}

// Err returns a *QuotaExceededError for a denial, nil otherwise
func (d *Decision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return &QuotaExceededError{
		OrgID:    d.OrgID,
		Resource: d.Resource,
		Current:  d.CurrentUsage,
		Limit:    d.Limit,
		Code:     d.Code,
	}
}

// LimitReached describes a reservation that used up the last included unit
type LimitReached struct {
	OrgID    string
	Period   usage.Period
	Resource usage.ResourceKind
	Used     int64
	Limit    int64
}

// Notifier is told when an organization reaches a cap. Implementations must
// not block the caller.
type Notifier interface {
	NotifyLimitReached(ctx context.Context, n LimitReached)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n LimitReached)

func (f NotifierFunc) NotifyLimitReached(ctx context.Context, n LimitReached) {
	f(ctx, n)
}

// Enforcer combines plan limits with usage counters
type Enforcer struct {
	directory  orgs.Directory
	accountant *usage.Accountant
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
	notifier   Notifier
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures an Enforcer
type Option func(*Enforcer)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Enforcer) { e.logger = logger }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Enforcer) { e.metrics = metrics }
}

func WithNotifier(n Notifier) Option {
	return func(e *Enforcer) { e.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

// NewEnforcer creates an Enforcer
func NewEnforcer(directory orgs.Directory, accountant *usage.Accountant, opts ...Option) *Enforcer {
	e := &Enforcer{
		directory:  directory,
		accountant: accountant,
		logger:     logrus.StandardLogger(),
		tracer:     otel.Tracer("github.com/platinummonkey/lumen/pkg/quota"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CurrentPeriod is the billing period at the enforcer's clock
func (e *Enforcer) CurrentPeriod() usage.Period {
	return usage.CurrentPeriod(e.now())
}

// CheckAndReserve decides whether orgID may consume amount units of kind in
// period and, if so, records them before returning. A denial is reported in
// the Decision; the error is non-nil only for a *ConfigurationError or an
// invalid amount.
func (e *Enforcer) CheckAndReserve(ctx context.Context, orgID string, period usage.Period, kind usage.ResourceKind, amount int64) (*Decision, error) {
	if amount <= 0 {
		return nil, usage.ErrInvalidAmount
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown resource kind: %q", kind)
	}

	ctx, span := e.tracer.Start(ctx, "quota.CheckAndReserve", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("quota.resource", string(kind)),
		attribute.Int64("quota.amount", amount),
	))
	defer span.End()

	d, err := e.reserve(ctx, orgID, period, kind, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveQuota(string(kind), "error")
		e.logger.WithError(err).WithFields(logrus.Fields{
			"org_id":   orgID,
			"resource": kind,
		}).Error("Quota check failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("quota.allowed", d.Allowed),
		attribute.Bool("quota.overage", d.IsOverage),
		attribute.Int64("quota.current", d.CurrentUsage),
	)
	e.metrics.ObserveQuota(string(kind), outcome(d))
	return d, nil
}

func (e *Enforcer) reserve(ctx context.Context, orgID string, period usage.Period, kind usage.ResourceKind, amount int64) (*Decision, error) {
	plan, err := e.directory.GetPlan(ctx, orgID)
	if err != nil {
		return nil, &ConfigurationError{Op: "get plan", Err: err}
	}
	limits, err := e.directory.GetPlanLimits(ctx, plan)
	if err != nil {
		return nil, &ConfigurationError{Op: "get plan limits", Err: err}
	}

	key := usage.Key{OrgID: orgID, Period: period, Kind: kind}
	limit := limits.Cap(kind)
	d := &Decision{
		OrgID:    orgID,
		Period:   period,
		Resource: kind,
		Amount:   amount,
		Limit:    limit,
	}

	if limit == usage.Unlimited {
		count, err := e.accountant.Increment(ctx, key, amount)
		if err != nil {
			return nil, &ConfigurationError{Op: "record usage", Err: err}
		}
		d.Allowed, d.Unlimited, d.CurrentUsage = true, true, count
		return d, nil
	}

	count, ok, err := e.accountant.IncrementWithinCap(ctx, key, amount, limit)
	if err != nil {
		return nil, &ConfigurationError{Op: "reserve usage", Err: err}
	}
	d.CurrentUsage = count
	if ok {
		d.Allowed = true
		if count == limit && limit > 0 {
			e.notifyLimitReached(ctx, d)
		}
		return d, nil
	}

	return e.reserveOverage(ctx, limits, key, d)
}

// reserveOverage handles a reservation that does not fit in the plan
func (e *Enforcer) reserveOverage(ctx context.Context, limits *orgs.PlanLimits, key usage.Key, d *Decision) (*Decision, error) {
	if !limits.Overage.Allowed {
		d.Code = CodeUsageLimitReached
		return d, nil
	}

	var settings *orgs.OverageSettings
	if od, ok := e.directory.(orgs.OverageDirectory); ok {
		s, err := od.GetOverageSettings(ctx, key.OrgID)
		if err != nil {
			return nil, &ConfigurationError{Op: "get overage settings", Err: err}
		}
		if s != nil && !s.Enabled {
			d.Code = CodeUsageLimitReached
			return d, nil
		}
		settings = s
	}

	price := limits.UnitPrice(key.Kind)
	if settings.HasSpendingCap() && price > 0 {
		// the spending cap becomes a unit ceiling so the store can enforce it
		ceiling := d.Limit + settings.SpendingCapCents/price
		count, ok, err := e.accountant.IncrementWithinCap(ctx, key, d.Amount, ceiling)
		if err != nil {
			return nil, &ConfigurationError{Op: "reserve overage", Err: err}
		}
		d.CurrentUsage = count
		if !ok {
			d.Code = CodeSpendingCapReached
			return d, nil
		}
	} else {
		count, err := e.accountant.Increment(ctx, key, d.Amount)
		if err != nil {
			return nil, &ConfigurationError{Op: "reserve overage", Err: err}
		}
		d.CurrentUsage = count
	}

	d.Allowed, d.IsOverage = true, true
	return d, nil
}

func (e *Enforcer) notifyLimitReached(ctx context.Context, d *Decision) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyLimitReached(ctx, LimitReached{
		OrgID:    d.OrgID,
		Period:   d.Period,
		Resource: d.Resource,
		Used:     d.CurrentUsage,
		Limit:    d.Limit,
	})
}

// Rollback gives back amount units after the protected operation failed.
// It never fails the caller: store errors are logged and counted. The
// caller's cancellation is ignored so a timed-out request still compensates.
func (e *Enforcer) Rollback(ctx context.Context, orgID string, period usage.Period, kind usage.ResourceKind, amount int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	key := usage.Key{OrgID: orgID, Period: period, Kind: kind}
	_, err := e.accountant.Decrement(ctx, key, amount)
	e.metrics.ObserveRollback(string(kind), err)
	if err != nil {
		observability.LoggerFromContext(ctx, e.logger).WithError(err).WithFields(logrus.Fields{
			"org_id":   orgID,
			"period":   period,
			"resource": kind,
			"amount":   amount,
		}).Error("Usage rollback failed")
	}
}

// RollbackDecision rolls back an allowed decision; denials are ignored
func (e *Enforcer) RollbackDecision(ctx context.Context, d *Decision) {
	if d == nil || !d.Allowed {
		return
	}
	e.Rollback(ctx, d.OrgID, d.Period, d.Resource, d.Amount)
}

// Guard reserves amount units of kind in the current period, runs fn, and
// rolls the reservation back if fn fails. A denial is returned as a
// *QuotaExceededError without calling fn.
func (e *Enforcer) Guard(ctx context.Context, orgID string, kind usage.ResourceKind, amount int64, fn func(context.Context, *Decision) error) (*Decision, error) {
	d, err := e.CheckAndReserve(ctx, orgID, e.CurrentPeriod(), kind, amount)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return d, d.Err()
	}

	if err := fn(ctx, d); err != nil {
		e.RollbackDecision(ctx, d)
		return d, err
	}
	return d, nil
}

func outcome(d *Decision) string {
	switch {
	case !d.Allowed:
		return "denied"
	case d.Unlimited:
		return "unlimited"
	case d.IsOverage:
		return "overage"
	default:
		return "within_plan"
	}
}
