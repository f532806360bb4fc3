package dispatch

import "context"

// Serial runs trials one at a time in the calling goroutine, in
// submission order. Used for testing and deterministic runs.
type Serial struct{}

// NewSerial creates a serial dispatcher.
func NewSerial() *Serial {
	return &Serial{}
}

// Dispatch runs every trial sequentially and stops on the first error.
func (s *Serial) Dispatch(ctx context.Context, trials []Trial, run TrialFunc) ([]Result, error) {
	results := make([]Result, 0, len(trials))
	for _, trial := range trials {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := run(ctx, trial)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
