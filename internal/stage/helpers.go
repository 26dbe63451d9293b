package stage

import "histosync/internal/dataset"

// Next returns the first queued image that has not been skipped this run.
func Next(queue []dataset.ImageFile, skipped map[string]bool) (dataset.ImageFile, bool) {
	for _, img := range queue {
		if !skipped[img.Basename] {
			return img, true
		}
	}
	return dataset.ImageFile{}, false
}

// Pending counts queued images that have not been skipped this run.
func Pending(queue []dataset.ImageFile, skipped map[string]bool) int {
	count := 0
	for _, img := range queue {
		if !skipped[img.Basename] {
			count++
		}
	}
	return count
}
