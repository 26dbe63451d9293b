package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"histosync/internal/dataset"
	"histosync/internal/fileutil"
	"histosync/internal/services"
)

// List returns the images in dir whose extension matches ext. In-flight
// ".part" files and dot files are ignored and a missing directory lists as
// empty. A matching name without a slice number fails the listing.
func List(dir, ext string) ([]dataset.ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	images := make([]dataset.ImageFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || fileutil.IsPartial(name) {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		img, err := dataset.ParseImage(name)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "inventory", "list", dir, err)
		}
		images = append(images, img)
	}
	dataset.Sort(images)
	return images, nil
}

// ListSet is List keyed by basename.
func ListSet(dir, ext string) (dataset.Set, error) {
	images, err := List(dir, ext)
	if err != nil {
		return nil, err
	}
	return dataset.NewSet(images...), nil
}
