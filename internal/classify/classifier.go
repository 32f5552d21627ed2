// Package classify maps raw database and driver error messages onto a fixed
// taxonomy, decides whether a failed attempt deserves another try and writes
// the guidance handed to the correction model.
package classify

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatterns []byte

type patternFile struct {
	Kinds []struct {
		Kind     string   `yaml:"kind"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"kinds"`
}

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
}

// Classifier holds an ordered, compiled pattern table. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	rules []rule
}

// New compiles a YAML pattern table. Table order is significant: the first
// matching pattern wins.
func New(data []byte) (*Classifier, error) {
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse error patterns: %w", err)
	}
	if len(file.Kinds) == 0 {
		return nil, fmt.Errorf("error pattern table is empty")
	}

	c := &Classifier{}
	for _, group := range file.Kinds {
		kind, err := ParseKind(group.Kind)
		if err != nil {
			return nil, err
		}
		if kind == Other {
			return nil, fmt.Errorf("kind %q is the fallback and cannot have patterns", group.Kind)
		}
		for _, p := range group.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %q for %s: %w", p, group.Kind, err)
			}
			c.rules = append(c.rules, rule{kind: kind, pattern: re})
		}
	}
	return c, nil
}

var (
	defaultOnce       sync.Once
	defaultClassifier *Classifier
)

// Default returns the classifier built from the embedded pattern table.
func Default() *Classifier {
	defaultOnce.Do(func() {
		c, err := New(defaultPatterns)
		if err != nil {
			panic(fmt.Sprintf("classify: embedded pattern table is invalid: %v", err))
		}
		defaultClassifier = c
	})
	return defaultClassifier
}

// Classify lower-cases msg and returns the kind of the first matching pattern,
// or Other.
func (c *Classifier) Classify(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, r := range c.rules {
		if r.pattern.MatchString(lower) {
			return r.kind
		}
	}
	return Other
}

// Classify uses the default table.
func Classify(msg string) Kind {
	return Default().Classify(msg)
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
// An exhausted budget always wins; permission and timeout failures are never
// retried; unclassified failures get a single blind retry.
func ShouldRetry(kind Kind, attempt, maxAttempts int) bool {
	if attempt >= maxAttempts {
		return false
	}
	if kind.Retryable() {
		return true
	}
	switch kind {
	case Permission, Timeout:
		return false
	default:
		return attempt < 2
	}
}
