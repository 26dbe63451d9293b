package dataset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"histosync/internal/services"
)

// slicePattern captures the trailing slice number and an optional
// parenthesised version, e.g. "section_0123" or "0123(2)".
var slicePattern = regexp.MustCompile(`(\d+)(?:\((\d+)\))?$`)

// ImageFile is a slice image identified by its basename.
type ImageFile struct {
	Name        string
	Basename    string
	SliceNumber int
	Version     int
	HasVersion  bool
}

// ParseImage parses a file name such as "0123(2).bmp". Names without a
// trailing slice number are rejected with services.ErrValidation.
func ParseImage(name string) (ImageFile, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	match := slicePattern.FindStringSubmatch(stem)
	if match == nil {
		return ImageFile{}, services.Wrap(services.ErrValidation, "dataset", "parse image name",
			fmt.Sprintf("%q has no slice number", base), nil)
	}
	slice, err := strconv.Atoi(match[1])
	if err != nil {
		return ImageFile{}, services.Wrap(services.ErrValidation, "dataset", "parse image name",
			fmt.Sprintf("%q slice number out of range", base), err)
	}
	img := ImageFile{Name: base, Basename: stem, SliceNumber: slice}
	if match[2] != "" {
		version, err := strconv.Atoi(match[2])
		if err != nil {
			return ImageFile{}, services.Wrap(services.ErrValidation, "dataset", "parse image name",
				fmt.Sprintf("%q version out of range", base), err)
		}
		img.Version = version
		img.HasVersion = true
	}
	return img, nil
}

// Less orders images by slice number, then unversioned before versioned,
// then version, then basename.
func Less(a, b ImageFile) bool {
	if a.SliceNumber != b.SliceNumber {
		return a.SliceNumber < b.SliceNumber
	}
	if a.HasVersion != b.HasVersion {
		return !a.HasVersion
	}
	if a.Version != b.Version {
		return a.Version < b.Version
	}
	return a.Basename < b.Basename
}

// Sort orders images in place using Less.
func Sort(images []ImageFile) {
	sort.SliceStable(images, func(i, j int) bool { return Less(images[i], images[j]) })
}

// Set is a collection of images keyed by basename.
type Set map[string]ImageFile

// NewSet builds a set from images; later duplicates replace earlier ones.
func NewSet(images ...ImageFile) Set {
	set := make(Set, len(images))
	for _, img := range images {
		set[img.Basename] = img
	}
	return set
}

// Has reports whether basename is a member.
func (s Set) Has(basename string) bool {
	_, ok := s[basename]
	return ok
}

// Minus returns members of s whose basenames are absent from every other set.
func (s Set) Minus(others ...Set) Set {
	out := make(Set, len(s))
	for basename, img := range s {
		excluded := false
		for _, other := range others {
			if other.Has(basename) {
				excluded = true
				break
			}
		}
		if !excluded {
			out[basename] = img
		}
	}
	return out
}

// Union returns the members of s and every other set.
func (s Set) Union(others ...Set) Set {
	out := make(Set, len(s))
	for basename, img := range s {
		out[basename] = img
	}
	for _, other := range others {
		for basename, img := range other {
			if _, ok := out[basename]; !ok {
				out[basename] = img
			}
		}
	}
	return out
}

// Sorted returns the members in stable slice order.
func (s Set) Sorted() []ImageFile {
	images := make([]ImageFile, 0, len(s))
	for _, img := range s {
		images = append(images, img)
	}
	Sort(images)
	return images
}
