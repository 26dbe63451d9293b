// Package downsample shrinks local originals with the external tool.
//
// Output is written to an in-flight name and renamed into the downsamples
// directory only on success, after which the original is deleted to reclaim
// space. Images the tool rejects are appended to the dataset error list and
// never attempted again.
package downsample
