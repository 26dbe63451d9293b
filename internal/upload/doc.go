// Package upload pushes local downsamples to the remote downsamples directory.
package upload
