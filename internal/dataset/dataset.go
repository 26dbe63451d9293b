package dataset

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrorListName is the file inside a dataset directory that records basenames
// the downsample tool failed on.
const ErrorListName = "error_files.txt"

// Dataset is the immutable description of one dataset for a run.
type Dataset struct {
	Name      string
	Ratio     int
	Extension string
	// ImagesDir is the local root that holds one directory per dataset.
	ImagesDir string
	// RemoteDir is the remote originals directory.
	RemoteDir string
}

// New validates and constructs a Dataset.
func New(name string, ratio int, extension, imagesDir, remoteDir string) (Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Dataset{}, errors.New("dataset name is required")
	}
	if ratio < 1 {
		return Dataset{}, fmt.Errorf("dataset %s: downsample ratio must be positive, got %d", name, ratio)
	}
	if !strings.HasPrefix(extension, ".") {
		return Dataset{}, fmt.Errorf("dataset %s: extension %q must start with a dot", name, extension)
	}
	remoteDir = strings.TrimRight(strings.TrimSpace(remoteDir), "/")
	if remoteDir == "" {
		return Dataset{}, fmt.Errorf("dataset %s: remote directory is required", name)
	}
	return Dataset{
		Name:      name,
		Ratio:     ratio,
		Extension: strings.ToLower(extension),
		ImagesDir: imagesDir,
		RemoteDir: remoteDir,
	}, nil
}

// Root is the local dataset directory.
func (d Dataset) Root() string {
	return filepath.Join(d.ImagesDir, d.Name)
}

// LocalOriginalsDir holds fully downloaded originals awaiting downsampling.
func (d Dataset) LocalOriginalsDir() string {
	return filepath.Join(d.Root(), "originals")
}

// LocalDownsamplesDir holds downsampled images for this ratio.
func (d Dataset) LocalDownsamplesDir() string {
	return filepath.Join(d.Root(), d.downsamplesSuffix())
}

// ErrorListPath is the dataset-local error list.
func (d Dataset) ErrorListPath() string {
	return filepath.Join(d.Root(), ErrorListName)
}

// RemoteOriginalsDir is the remote directory holding the originals.
func (d Dataset) RemoteOriginalsDir() string {
	return d.RemoteDir
}

// RemoteDownsamplesDir is a sibling of the remote originals directory named
// <originals>_downsamples_<ratio>.
func (d Dataset) RemoteDownsamplesDir() string {
	return d.RemoteDir + "_" + d.downsamplesSuffix()
}

// RemotePath joins a remote directory and file name with forward slashes.
func RemotePath(dir, name string) string {
	return path.Join(dir, name)
}

// IsImage reports whether name carries the dataset extension.
func (d Dataset) IsImage(name string) bool {
	return strings.EqualFold(filepath.Ext(name), d.Extension)
}

func (d Dataset) downsamplesSuffix() string {
	return "downsamples_" + strconv.Itoa(d.Ratio)
}
