package resolve

import "context"

// Observer receives lifecycle callbacks for a single Resolve call.
// Implementations must be safe for concurrent use when the Loop is shared.
type Observer interface {
	OnStart(ctx context.Context, req GenerationRequest, budget Budget)
	OnAttempt(ctx context.Context, a Attempt)
	OnAccepted(ctx context.Context, r Result)
	OnExhausted(ctx context.Context, r Result)
}

// BaseObserver implements Observer with no-op methods. Embed it to implement
// only the callbacks you need.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, GenerationRequest, Budget) {}
func (BaseObserver) OnAttempt(context.Context, Attempt)                 {}
func (BaseObserver) OnAccepted(context.Context, Result)                 {}
func (BaseObserver) OnExhausted(context.Context, Result)                {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnStart(ctx context.Context, req GenerationRequest, budget Budget) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnStart(ctx, req, budget)
		}
	}
}

func (m MultiObserver) OnAttempt(ctx context.Context, a Attempt) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnAttempt(ctx, a)
		}
	}
}

func (m MultiObserver) OnAccepted(ctx context.Context, r Result) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnAccepted(ctx, r)
		}
	}
}

func (m MultiObserver) OnExhausted(ctx context.Context, r Result) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnExhausted(ctx, r)
		}
	}
}
