// Package dataset describes where a dataset's images live and how slice image
// file names are parsed and ordered.
//
// A Dataset is fixed for the duration of a run: its name, downsample ratio
// and extension determine the local originals and downsamples directories,
// the dataset-local error list file, and the remote directories the
// downsamples are uploaded to.
package dataset
