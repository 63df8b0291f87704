package listing

import (
	"context"
	"time"
)

// DefaultConfirmDelay is how long a save confirmation stays visible.
const DefaultConfirmDelay = 2 * time.Second

// Phase is a step of a confirmation sequence.
type Phase int

const (
	PhaseSubmit Phase = iota
	PhaseConfirm
	PhaseDelay
	PhaseDone
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmit:
		return "submit"
	case PhaseConfirm:
		return "confirm"
	case PhaseDelay:
		return "delay"
	case PhaseDone:
		return "done"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// sequence runs submit → confirm → (delay) → done. Submit and confirm run on
// the caller's goroutine; the delay runs in the background and is abandoned
// when the lifetime context ends, in which case finish is skipped.
type sequence struct {
	delay   time.Duration
	observe func(Phase)
}

func (s sequence) report(p Phase) {
	if s.observe != nil {
		s.observe(p)
	}
}

// run returns a channel that receives the terminal phase (PhaseDone or
// PhaseCancelled). If submit fails, confirm and finish never run.
func (s sequence) run(
	ctx, lifetime context.Context,
	submit func(context.Context) error,
	confirm, finish func(),
) (<-chan Phase, error) {
	s.report(PhaseSubmit)
	if err := submit(ctx); err != nil {
		return nil, err
	}

	s.report(PhaseConfirm)
	confirm()

	terminal := make(chan Phase, 1)
	s.report(PhaseDelay)
	go func() {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			finish()
			s.report(PhaseDone)
			terminal <- PhaseDone
		case <-lifetime.Done():
			s.report(PhaseCancelled)
			terminal <- PhaseCancelled
		}
	}()
	return terminal, nil
}
