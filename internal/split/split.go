// Package split partitions games into train/test strictly by chronological
// (season, week) order. Nothing here ever shuffles: every test bucket sorts
// after every train bucket, which is the structural guarantee against future
// information leaking into a fit.
package split

import (
	"fmt"
	"math"
	"sort"

	"nfl-edge-pipeline/internal/schema"
)

// Policy selects how the chronological buckets are partitioned.
type Policy string

const (
	PolicyFraction  Policy = "fraction"
	PolicyRolling   Policy = "rolling"
	PolicyExpanding Policy = "expanding"
)

// DefaultTrainFraction is the share of distinct (season, week) buckets
// assigned to training under PolicyFraction.
const DefaultTrainFraction = 0.7

// Config parameterizes a split.
type Config struct {
	Policy        Policy
	TrainFraction float64 // PolicyFraction: earliest share of buckets to train on
	WindowWeeks   int     // PolicyRolling: train window; PolicyExpanding: minimum train size
}

// DefaultConfig returns the 70/30 fraction policy.
func DefaultConfig() Config {
	return Config{Policy: PolicyFraction, TrainFraction: DefaultTrainFraction, WindowWeeks: 4}
}

// Bucket is one distinct (season, week) pair, the atomic unit of splitting.
type Bucket struct {
	Season int
	Week   int
}

// Less orders buckets by season, then week.
func (b Bucket) Less(other Bucket) bool {
	if b.Season != other.Season {
		return b.Season < other.Season
	}
	return b.Week < other.Week
}

// Fold is one train/test partition; indices refer to the input games slice.
type Fold struct {
	Train []int
	Test  []int
}

// Split partitions games per cfg. PolicyFraction returns a single fold;
// rolling and expanding policies return one fold per eligible test bucket.
// Only played games are assigned — unplayed games belong to neither side.
func Split(games []schema.Game, cfg Config) ([]Fold, error) {
	buckets, byBucket := bucketize(games)
	if len(buckets) < 2 {
		return nil, fmt.Errorf("need at least 2 (season, week) buckets to split, got %d", len(buckets))
	}

	switch cfg.Policy {
	case PolicyFraction, "":
		frac := cfg.TrainFraction
		if frac <= 0 || frac >= 1 {
			return nil, fmt.Errorf("train fraction must be in (0, 1), got %v", frac)
		}
		cut := int(math.Round(frac * float64(len(buckets))))
		if cut < 1 {
			cut = 1
		}
		if cut >= len(buckets) {
			cut = len(buckets) - 1
		}
		fold := Fold{
			Train: gather(buckets[:cut], byBucket),
			Test:  gather(buckets[cut:], byBucket),
		}
		return []Fold{fold}, nil

	case PolicyRolling:
		w := cfg.WindowWeeks
		if w < 1 {
			return nil, fmt.Errorf("rolling policy needs a positive window, got %d", w)
		}
		var folds []Fold
		for i := w; i < len(buckets); i++ {
			folds = append(folds, Fold{
				Train: gather(buckets[i-w:i], byBucket),
				Test:  gather(buckets[i:i+1], byBucket),
			})
		}
		if len(folds) == 0 {
			return nil, fmt.Errorf("window %d leaves no test buckets out of %d", w, len(buckets))
		}
		return folds, nil

	case PolicyExpanding:
		w := cfg.WindowWeeks
		if w < 1 {
			return nil, fmt.Errorf("expanding policy needs a positive minimum window, got %d", w)
		}
		var folds []Fold
		for i := w; i < len(buckets); i++ {
			folds = append(folds, Fold{
				Train: gather(buckets[:i], byBucket),
				Test:  gather(buckets[i:i+1], byBucket),
			})
		}
		if len(folds) == 0 {
			return nil, fmt.Errorf("minimum window %d leaves no test buckets out of %d", w, len(buckets))
		}
		return folds, nil

	default:
		return nil, fmt.Errorf("unknown split policy %q", cfg.Policy)
	}
}

// bucketize groups played-game indices by (season, week) and returns the
// buckets in ascending chronological order.
func bucketize(games []schema.Game) ([]Bucket, map[Bucket][]int) {
	byBucket := make(map[Bucket][]int)
	for i := range games {
		if !games[i].Played() {
			continue
		}
		b := Bucket{Season: games[i].Season, Week: games[i].Week}
		byBucket[b] = append(byBucket[b], i)
	}

	buckets := make([]Bucket, 0, len(byBucket))
	for b := range byBucket {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Less(buckets[j]) })
	return buckets, byBucket
}

func gather(buckets []Bucket, byBucket map[Bucket][]int) []int {
	var idx []int
	for _, b := range buckets {
		idx = append(idx, byBucket[b]...)
	}
	sort.Ints(idx)
	return idx
}
