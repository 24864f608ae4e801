package download

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is the source of every random draw the simulation makes.
// *math/rand/v2.Rand satisfies it; implementations must be safe for
// concurrent use when shared between downloads.
type Rand interface {
	// Uint64N returns a uniformly distributed value in [0, n). n is never 0.
	Uint64N(n uint64) uint64
}

var _ Rand = (*rand.Rand)(nil)

// Range is a half-open interval [Min, Max).
type Range struct {
	Min uint64
	Max uint64
}

// DurationRange is a half-open interval of durations [Min, Max).
type DurationRange struct {
	Min time.Duration
	Max time.Duration
}

// Ranges bounds the three draws made during a download.
type Ranges struct {
	// Total is the simulated file size, drawn once when the download starts.
	Total Range
	// Chunk is the number of units received per step.
	Chunk Range
	// Delay is how long each step waits before reporting.
	Delay DurationRange
}

// DefaultRanges returns the reference bounds: totals in [10_000, 50_000),
// chunks in [1_000, 5_000) and delays in [100ms, 500ms).
func DefaultRanges() Ranges {
	return Ranges{
		Total: Range{Min: 10_000, Max: 50_000},
		Chunk: Range{Min: 1_000, Max: 5_000},
		Delay: DurationRange{Min: 100 * time.Millisecond, Max: 500 * time.Millisecond},
	}
}

// Validate reports the first empty or inverted range.
func (r Ranges) Validate() error {
	if r.Total.Min == 0 {
		return errors.New("total range must start above zero")
	}
	if r.Total.Max <= r.Total.Min {
		return fmt.Errorf("total range [%d, %d) is empty", r.Total.Min, r.Total.Max)
	}
	if r.Chunk.Min == 0 {
		return errors.New("chunk range must start above zero")
	}
	if r.Chunk.Max <= r.Chunk.Min {
		return fmt.Errorf("chunk range [%d, %d) is empty", r.Chunk.Min, r.Chunk.Max)
	}
	if r.Delay.Min < 0 {
		return errors.New("delay range must not be negative")
	}
	if r.Delay.Max <= r.Delay.Min {
		return fmt.Errorf("delay range [%s, %s) is empty", r.Delay.Min, r.Delay.Max)
	}
	return nil
}

func drawUint64(src Rand, r Range) uint64 {
	return r.Min + src.Uint64N(r.Max-r.Min)
}

func drawDuration(src Rand, r DurationRange) time.Duration {
	return r.Min + time.Duration(src.Uint64N(uint64(r.Max-r.Min)))
}

// lockedRand serialises access to a *rand.Rand, which is not safe for
// concurrent use on its own.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewRand returns a goroutine-safe Rand seeded from the runtime's entropy.
func NewRand() Rand {
	return &lockedRand{src: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRand returns a goroutine-safe Rand whose sequence is fixed by the
// two seeds.
func NewSeededRand(seed1, seed2 uint64) Rand {
	return &lockedRand{src: rand.New(rand.NewPCG(seed1, seed2))}
}

func (r *lockedRand) Uint64N(n uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Uint64N(n)
}
