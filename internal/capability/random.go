package capability

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/middleware"
)

// RandomOperation asks for Count random numbers in [Min, Max]. A Count of
// zero or less asks for one.
type RandomOperation struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count,omitempty"`
}

// OperationName implements command.Operation.
func (RandomOperation) OperationName() string { return "random" }

// RandomNumber is one value of a random stream.
type RandomNumber struct {
	Value int `json:"value"`
}

// RandomRequest is a request for a random stream.
type RandomRequest = command.Request[RandomOperation, RandomNumber]

// Random subscribes to a stream of random numbers.
func Random[Eff, Ev any](op RandomOperation, lift func(*RandomRequest) Eff) *command.StreamBuilder[Eff, Ev, RandomNumber] {
	return command.StreamFromShell[Eff, Ev](op, lift)
}

// RandomSource draws numbers from a seeded PCG generator.
//
// Thread-safety: safe for concurrent use.
type RandomSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource creates a source. The same seed yields the same numbers.
func NewRandomSource(seed uint64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Between returns a number in [lo, hi].
func (s *RandomSource) Between(lo, hi int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.IntN(hi-lo+1)
}

// NewRandomMiddleware answers random streams from src on w. Every value of
// one stream is delivered in order from a single job.
func NewRandomMiddleware[Eff any](src *RandomSource, w *Worker, narrow func(Eff) (*RandomRequest, bool)) middleware.MiddlewareFunc[Eff, RandomOperation, RandomNumber] {
	return middleware.MiddlewareFunc[Eff, RandomOperation, RandomNumber]{
		Narrow: narrow,
		Handle: func(op RandomOperation, resolve func(RandomNumber)) {
			w.Go(func(ctx context.Context) error {
				if op.Max < op.Min {
					return fmt.Errorf("random: invalid range [%d, %d]", op.Min, op.Max)
				}
				count := max(op.Count, 1)
				for range count {
					if err := ctx.Err(); err != nil {
						return err
					}
					resolve(RandomNumber{Value: src.Between(op.Min, op.Max)})
				}
				return nil
			})
		},
	}
}
