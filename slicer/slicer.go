package slicer

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

const (
	// DefaultMaxRestarts is the number of placement restarts allowed before falling back
	// to packing the windows left to right.
	DefaultMaxRestarts = 10000
)

var (
	// ErrConfiguration is returned when a request can never be satisfied.
	ErrConfiguration = errors.New("slice configuration error")
	// ErrAllocationCancelled is returned when the caller's context ends before placement completes.
	ErrAllocationCancelled = errors.New("slice allocation cancelled")
)

// RandomSource defines the requirements for the entropy used to place windows.
type RandomSource interface {
	// IntN returns a uniformly distributed integer in [0, n).
	IntN(n int) int
}

// Interval represents a half-open range [Start, End) of indices into a price series.
type Interval struct {
	Start int
	End   int
}

// Len returns the number of indices covered by the interval.
func (i Interval) Len() int {
	return i.End - i.Start
}

// Overlaps checks whether the interval shares an index with the provided interval.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && other.Start < i.End
}

// Request represents a request for disjoint fixed length windows over an index range.
type Request struct {
	// TotalLength is the length of the index range.
	TotalLength int
	// Count is the number of windows to place.
	Count int
	// WindowLength is the length of each window.
	WindowLength int
}

// Validate asserts the request can be satisfied.
func (r *Request) Validate() error {
	switch {
	case r.WindowLength <= 0:
		return fmt.Errorf("%w: window length must be positive, got %d", ErrConfiguration, r.WindowLength)
	case r.Count < 0:
		return fmt.Errorf("%w: count cannot be negative, got %d", ErrConfiguration, r.Count)
	case r.TotalLength <= 0:
		return fmt.Errorf("%w: total length must be positive, got %d", ErrConfiguration, r.TotalLength)
	case r.Count > r.TotalLength/r.WindowLength:
		// count * window length exceeds the total length. Division avoids overflow.
		return fmt.Errorf("%w: %d windows of length %d do not fit in %d", ErrConfiguration,
			r.Count, r.WindowLength, r.TotalLength)
	}

	return nil
}

// AllocatorConfig represents the allocator configuration.
type AllocatorConfig struct {
	// MaxRestarts is the number of placement restarts allowed before falling back to packing.
	MaxRestarts int
}

// Validate asserts the config sane inputs.
func (cfg *AllocatorConfig) Validate() error {
	if cfg.MaxRestarts < 0 {
		return fmt.Errorf("max restarts cannot be negative, got %d", cfg.MaxRestarts)
	}

	return nil
}

// Allocator places random disjoint windows over an index range.
type Allocator struct {
	cfg *AllocatorConfig
}

// NewAllocator initializes a new allocator.
func NewAllocator(cfg *AllocatorConfig) (*Allocator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating allocator config: %w", err)
	}

	return &Allocator{cfg: cfg}, nil
}

// Allocate places count random, pairwise disjoint windows of windowLength within
// [0, totalLength) using the provided random source.
func Allocate(totalLength int, count int, windowLength int, rng RandomSource) ([]Interval, error) {
	alloc := &Allocator{cfg: &AllocatorConfig{MaxRestarts: DefaultMaxRestarts}}
	req := Request{TotalLength: totalLength, Count: count, WindowLength: windowLength}

	return alloc.Allocate(context.Background(), req, rng)
}

// Allocate places req.Count random, pairwise disjoint windows of req.WindowLength within
// [0, req.TotalLength).
//
// Windows are placed greedily at random. When a placement leaves no room for the
// remaining windows all placed windows are discarded and placement starts over. Once the
// restart budget is spent the windows are packed left to right with random gaps, which
// always succeeds for a valid request.
func (a *Allocator) Allocate(ctx context.Context, req Request, rng RandomSource) ([]Interval, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	if req.Count == 0 {
		return []Interval{}, nil
	}

	span := req.TotalLength - req.WindowLength + 1
	starts := make([]int, 0, span)
	placed := make([]Interval, 0, req.Count)

	for restarts := 0; restarts <= a.cfg.MaxRestarts; restarts++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w after %d restarts: %w", ErrAllocationCancelled, restarts, ctx.Err())
		}

		placed = placed[:0]
		starts = starts[:0]
		for s := range span {
			starts = append(starts, s)
		}

		for len(placed) < req.Count && len(starts) > 0 {
			start := starts[rng.IntN(len(starts))]
			placed = append(placed, Interval{Start: start, End: start + req.WindowLength})

			// Drop every start whose window would overlap the one just placed.
			starts = slices.DeleteFunc(starts, func(s int) bool {
				return s+req.WindowLength > start && s < start+req.WindowLength
			})
		}

		if len(placed) == req.Count {
			return slices.Clone(placed), nil
		}
	}

	return pack(req, rng), nil
}

// pack lays the windows out left to right, spreading the unused indices over random gaps
// between them, and returns them in random order.
func pack(req Request, rng RandomSource) []Interval {
	slack := req.TotalLength - req.Count*req.WindowLength

	// Sorted offsets drawn from [0, slack] split the slack into count+1 gaps.
	offsets := make([]int, req.Count)
	for idx := range offsets {
		offsets[idx] = rng.IntN(slack + 1)
	}
	slices.Sort(offsets)

	packed := make([]Interval, req.Count)
	for idx := range packed {
		start := idx*req.WindowLength + offsets[idx]
		packed[idx] = Interval{Start: start, End: start + req.WindowLength}
	}

	for idx := len(packed) - 1; idx > 0; idx-- {
		swap := rng.IntN(idx + 1)
		packed[idx], packed[swap] = packed[swap], packed[idx]
	}

	return packed
}
