// Package download fetches images from the remote archive.
//
// The originals handler fetches remote originals that still need
// downsampling and are not yet local. The downsamples handler mirrors remote
// downsamples that are missing locally. Both wait for disk space before every
// fetch.
package download
