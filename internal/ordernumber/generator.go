// Package ordernumber produces the human-readable order numbers customers
// quote at the counter: prefix, store-local date as YYMMDD, three random
// digits. Example: PP250301042.
package ordernumber

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

const (
	DefaultPrefix   = "PP"
	DefaultAttempts = 10
	suffixSpace     = 1000
)

var shape = regexp.MustCompile(`^[A-Z]{2}\d{6}\d{3}$`)

// ExistsFunc reports whether a number is already taken.
type ExistsFunc func(ctx context.Context, number string) (bool, error)

// Generator is safe for concurrent use. Uniqueness is ultimately enforced by
// the unique index on orders.order_number.
type Generator struct {
	prefix   string
	loc      *time.Location
	attempts int
	now      func() time.Time
	intn     func(n int) int
}

type Option func(*Generator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom replaces the suffix source. intn must return values in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(g *Generator) { g.intn = intn }
}

// WithAttempts overrides the retry bound.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// NewGenerator builds a generator for the given prefix and store timezone.
func NewGenerator(prefix string, loc *time.Location, opts ...Option) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if loc == nil {
		loc = time.UTC
	}
	g := &Generator{
		prefix:   prefix,
		loc:      loc,
		attempts: DefaultAttempts,
		now:      time.Now,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Format renders the number for the given instant and suffix.
func (g *Generator) Format(at time.Time, suffix int) string {
	return fmt.Sprintf("%s%s%03d", g.prefix, at.In(g.loc).Format("060102"), suffix%suffixSpace)
}

// Next draws one candidate without checking uniqueness.
func (g *Generator) Next() string {
	return g.Format(g.now(), g.intn(suffixSpace))
}

// Generate draws candidates until exists reports a free one, giving up after
// the configured number of attempts.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := g.Next()
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order number")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", Exhausted(g.attempts)
}

// Exhausted is the error returned when no free number could be found.
func Exhausted(attempts int) error {
	return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonIDGenerationExhausted,
		"could not allocate an order number after %d attempts", attempts)
}

// Valid reports whether number has the order number shape.
func Valid(number string) bool {
	return shape.MatchString(number)
}
