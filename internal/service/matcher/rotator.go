package matcher

import (
	"sync/atomic"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
)

// FallbackRotator cycles through active fallbacks. One counter is shared by every
// caller of the owning Matcher and advances on each selection.
type FallbackRotator struct {
	counter atomic.Uint64
}

// Next returns the next active fallback, or the built-in default when none is active.
func (r *FallbackRotator) Next(fallbacks []domain.Fallback) domain.Fallback {
	active := make([]domain.Fallback, 0, len(fallbacks))
	for _, fb := range fallbacks {
		if fb.Active {
			active = append(active, fb)
		}
	}
	if len(active) == 0 {
		return DefaultFallback()
	}

	n := r.counter.Add(1) - 1
	return active[n%uint64(len(active))]
}

// Reset rewinds the rotation to the first fallback.
func (r *FallbackRotator) Reset() {
	r.counter.Store(0)
}

func DefaultFallback() domain.Fallback {
	return domain.Fallback{
		ID:      "default",
		Message: constants.DefaultFallback.Message,
		Tone:    domain.Tone(constants.DefaultFallback.Tone),
		Active:  true,
	}
}
