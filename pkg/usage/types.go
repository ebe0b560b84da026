package usage

import (
	"fmt"
	"math"
	"time"
)

// ResourceKind is a metered resource
type ResourceKind string

const (
	Checks    ResourceKind = "checks"
	Pages     ResourceKind = "pages"
	Articles  ResourceKind = "articles"
	Audits    ResourceKind = "audits"
	AICredits ResourceKind = "ai_credits"
)

// AllKinds lists every metered resource in display order
var AllKinds = []ResourceKind{Checks, Pages, Articles, Audits, AICredits}

// Valid reports whether k is one of the metered resources
func (k ResourceKind) Valid() bool {
	for _, kind := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseKind validates a resource kind name
func ParseKind(s string) (ResourceKind, error) {
	k := ResourceKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown resource kind: %q", s)
	}
	return k, nil
}

// Unlimited is the cap value meaning "no cap"
const Unlimited int64 = -1

// Period is a billing period in YYYY-MM form. A new month starts a new set
// of counters; old ones are kept as history.
type Period string

const periodLayout = "2006-01"

// CurrentPeriod returns the UTC billing period containing t
func CurrentPeriod(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

// ParsePeriod validates a YYYY-MM string
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", fmt.Errorf("invalid billing period %q: want YYYY-MM", s)
	}
	return Period(s), nil
}

// Key addresses one usage counter
type Key struct {
	OrgID  string
	Period Period
	Kind   ResourceKind
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.OrgID, k.Period, k.Kind)
}

// Percent returns min(100, round(used/limit*100)). A zero limit means no
// usage is possible, so it reads as full. Unlimited reads as zero.
func Percent(used, limit int64) int {
	switch {
	case limit == Unlimited:
		return 0
	case limit <= 0:
		return 100
	case used <= 0:
		return 0
	}
	pct := int(math.Round(float64(used) / float64(limit) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}
