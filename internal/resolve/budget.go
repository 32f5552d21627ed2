package resolve

const DefaultMaxAttempts = 3

// Budget bounds the number of Generating transitions per question.
type Budget struct {
	MaxAttempts int `json:"max_attempts"`
}

// Normalize fills the default for a non-positive MaxAttempts. Any positive
// value is kept as given.
func (b Budget) Normalize() Budget {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = DefaultMaxAttempts
	}
	return b
}
