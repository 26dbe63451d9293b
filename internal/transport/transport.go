package transport

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"histosync/internal/config"
	"histosync/internal/fileutil"
	"histosync/internal/services"
)

// Transport is the remote archive as seen by the stages. Implementations hide
// reconnects and transient retries; errors they return carry a services
// marker.
type Transport interface {
	// List returns the base names of regular entries in dir. In-flight
	// ".part" entries are never returned. A missing directory yields an error
	// marked services.ErrNotFound.
	List(ctx context.Context, dir string) ([]string, error)
	// Fetch downloads remotePath into localPath through a local ".part" file
	// that is renamed into place only after the transfer completes.
	Fetch(ctx context.Context, remotePath, localPath string) error
	// Put uploads localPath to remotePath through a remote ".part" object
	// that is renamed into place only after the transfer completes.
	Put(ctx context.Context, localPath, remotePath string) error
	// MakeDir creates dir, treating an existing directory as success.
	MakeDir(ctx context.Context, dir string) error
	Close() error
}

// Open connects to the remote archive described by ds.
func Open(ctx context.Context, ds config.Dataset, logger *slog.Logger) (Transport, error) {
	switch ds.Backend {
	case config.BackendFTP, "":
		return DialFTP(ctx, FTPOptions{
			Address:          ds.Address(),
			User:             ds.User,
			Password:         ds.Password,
			TLS:              ds.UseTLS,
			Timeout:          ds.DialTimeout(),
			TransientRetries: ds.TransientRetries,
			Resume:           ds.ResumeEnabled(),
			Logger:           logger,
		})
	case config.BackendS3:
		return NewObjectStore(ObjectStoreOptions{
			Endpoint:  ds.Address(),
			AccessKey: ds.User,
			SecretKey: ds.Password,
			Bucket:    ds.Bucket,
			UseTLS:    ds.UseTLS,
			Logger:    logger,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "transport", "open",
			fmt.Sprintf("unsupported backend %q", ds.Backend), nil)
	}
}

// filterNames reduces raw listing output to base names, dropping in-flight
// uploads and directory markers.
func filterNames(raw []string) []string {
	names := make([]string, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.HasSuffix(entry, "/") {
			continue
		}
		name := path.Base(entry)
		if name == "." || name == ".." || fileutil.IsPartial(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}
