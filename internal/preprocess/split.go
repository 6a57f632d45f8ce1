package preprocess

import (
	"errors"
	"math"
)

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// SeededRandom is a linear congruential generator. The same seed yields the
// same sequence on every platform.
type SeededRandom struct {
	state int64
}

func NewSeededRandom(seed int64) *SeededRandom {
	// (s*a+c) mod m only depends on s mod m; reducing first avoids overflow
	state := seed % lcgModulus
	if state < 0 {
		state += lcgModulus
	}
	return &SeededRandom{state: state}
}

// Next advances the generator and returns a value in [0, 1)
func (r *SeededRandom) Next() float64 {
	r.state = (r.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(r.state) / lcgModulus
}

// Shuffle returns a reordered copy of items. It sorts with a comparator that
// draws from r, using a fixed merge sort so the comparator call sequence never
// depends on the runtime's sort implementation.
func Shuffle[T any](items []T, r *SeededRandom) []T {
	out := make([]T, len(items))
	copy(out, items)
	if len(out) < 2 {
		return out
	}
	buf := make([]T, len(out))
	mergeShuffle(out, buf, func() bool { return r.Next()-0.5 > 0 })
	return out
}

// mergeShuffle sorts s in place; after(a, b) reports whether the left
// element should be placed after the right one.
func mergeShuffle[T any](s, buf []T, after func() bool) {
	if len(s) < 2 {
		return
	}
	mid := len(s) / 2
	mergeShuffle(s[:mid], buf[:mid], after)
	mergeShuffle(s[mid:], buf[mid:], after)

	i, j, k := 0, mid, 0
	for i < mid && j < len(s) {
		if after() {
			buf[k] = s[j]
			j++
		} else {
			buf[k] = s[i]
			i++
		}
		k++
	}
	k += copy(buf[k:], s[i:mid])
	copy(buf[k:], s[j:])
	copy(s, buf[:len(s)])
}

// Partition is the outcome of a seeded split
type Partition[T any] struct {
	Train      []T
	Validation []T
	Test       []T
}

var ErrInvalidRatios = errors.New("split ratios must be non-negative and sum to a positive value")

// SplitPairs shuffles items with seed and cuts them into train, validation
// and test. Ratios are normalized by their sum.
func SplitPairs[T any](items []T, trainRatio, valRatio, testRatio float64, seed int64) (Partition[T], error) {
	total := trainRatio + valRatio + testRatio
	if trainRatio < 0 || valRatio < 0 || testRatio < 0 || total <= 0 || math.IsNaN(total) {
		return Partition[T]{}, ErrInvalidRatios
	}
	normTrain := trainRatio / total
	normVal := valRatio / total

	shuffled := Shuffle(items, NewSeededRandom(seed))
	n := len(shuffled)
	trainEnd := int(math.Floor(float64(n) * normTrain))
	valEnd := trainEnd + int(math.Floor(float64(n)*normVal))
	if valEnd > n {
		valEnd = n
	}

	return Partition[T]{
		Train:      shuffled[:trainEnd],
		Validation: shuffled[trainEnd:valEnd],
		Test:       shuffled[valEnd:],
	}, nil
}
