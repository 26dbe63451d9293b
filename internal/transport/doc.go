// Package transport moves slice images between the local host and a remote
// archive.
//
// Two backends implement Transport: an FTP client built on jlaffaye/ftp that
// probes its control connection before every operation and reconnects on
// failure, and an S3-compatible object store built on minio-go. Both write
// through ".part" names and rename into place so an interrupted transfer never
// looks complete to the reconciler.
package transport
