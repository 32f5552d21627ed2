package resolve

import (
	"time"

	"go.uber.org/zap"

	"nl2sql/internal/classify"
	"nl2sql/internal/sqlguard"
)

type loopConfig struct {
	budget     Budget
	mode       sqlguard.Mode
	classifier *classify.Classifier
	observer   Observer
	logger     *zap.Logger
	clock      func() time.Time
}

// Option configures a Loop.
type Option func(*loopConfig)

// WithMaxAttempts sets the default budget used when Resolve is called with
// maxAttempts <= 0.
func WithMaxAttempts(n int) Option {
	return func(c *loopConfig) { c.budget = Budget{MaxAttempts: n} }
}

// WithMode selects the guard mode applied to every candidate.
func WithMode(m sqlguard.Mode) Option {
	return func(c *loopConfig) { c.mode = m }
}

func WithClassifier(cl *classify.Classifier) Option {
	return func(c *loopConfig) {
		if cl != nil {
			c.classifier = cl
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *loopConfig) { c.observer = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *loopConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *loopConfig) {
		if now != nil {
			c.clock = now
		}
	}
}
