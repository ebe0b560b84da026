package quota

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/platinummonkey/lumen/pkg/usage"
)

// Denial codes surfaced to clients
const (
	CodeUsageLimitReached  = "USAGE_LIMIT_REACHED"
	CodeSpendingCapReached = "SPENDING_CAP_REACHED"
)

// QuotaExceededError is a soft denial. It is resolved by a plan change or
// an overage opt-in, not by retrying.
type QuotaExceededError struct {
	OrgID    string
	Resource usage.ResourceKind
	Current  int64
	Limit    int64
	Code     string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %s usage %d of %d", e.Code, e.Resource, e.Current, e.Limit)
}

// StatusCode maps a denial to 402 Payment Required, the paywall prompt
func (e *QuotaExceededError) StatusCode() int {
	return http.StatusPaymentRequired
}

// Details carries what a client needs to render the paywall message
func (e *QuotaExceededError) Details() map[string]string {
	return map[string]string{
		"code":     e.Code,
		"resource": string(e.Resource),
		"current":  strconv.FormatInt(e.Current, 10),
		"limit":    strconv.FormatInt(e.Limit, 10),
	}
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// ConfigurationError means the plan or the usage store could not be read.
// It fails the request.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("quota %s: %v", e.Op, e.Err)
}

// StatusCode maps the error to 503 Service Unavailable
func (e *ConfigurationError) StatusCode() int {
	return http.StatusServiceUnavailable
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
