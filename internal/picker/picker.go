// Package picker selects one image per sampling window across a slice
// series, for building a sparse subset of a dataset.
package picker

import (
	"errors"
	"fmt"
	"sort"

	"histosync/internal/dataset"
)

// ErrNoCandidates is returned when a sampling window has no image at or
// below its upper bound.
var ErrNoCandidates = errors.New("no candidate images")

// Pick walks targets from the first slice number to the last in steps of
// step. For each target it chooses, among the remaining images below
// target+step, the one closest to the target; ties go to the lower slice and
// duplicate slices resolve to the unversioned image, then the lowest version.
// Images at or below max(picked, target) are then discarded.
func Pick(images []dataset.ImageFile, step int) ([]dataset.ImageFile, error) {
	if step < 1 {
		return nil, fmt.Errorf("step must be positive, got %d", step)
	}
	if len(images) == 0 {
		return nil, nil
	}
	available := append([]dataset.ImageFile(nil), images...)
	dataset.Sort(available)
	first := available[0].SliceNumber
	last := available[len(available)-1].SliceNumber

	var picked []dataset.ImageFile
	for target := first; target <= last; target += step {
		end := 0
		for end < len(available) && available[end].SliceNumber < target+step {
			end++
		}
		if end == 0 {
			return picked, fmt.Errorf("%w for slice %d", ErrNoCandidates, target)
		}
		choice := closest(available[:end], target)
		picked = append(picked, choice)

		cutoff := max(choice.SliceNumber, target)
		drop := 0
		for drop < len(available) && available[drop].SliceNumber <= cutoff {
			drop++
		}
		available = available[drop:]
	}
	return picked, nil
}

func closest(candidates []dataset.ImageFile, target int) dataset.ImageFile {
	ranked := append([]dataset.ImageFile(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := ranked[i].SliceNumber - target
		dj := ranked[j].SliceNumber - target
		if abs(di) != abs(dj) {
			return abs(di) < abs(dj)
		}
		if di != dj {
			return di < dj
		}
		return dataset.Less(ranked[i], ranked[j])
	})
	return ranked[0]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
