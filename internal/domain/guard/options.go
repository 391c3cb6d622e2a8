package guard

// Option configures a guard.
type Option func(*inFlight)

// WithMaxInFlight caps the number of concurrently held ids.
// Zero or negative means unbounded.
func WithMaxInFlight(n int) Option {
	return func(g *inFlight) {
		g.maxSize = n
	}
}
