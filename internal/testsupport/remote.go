package testsupport

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"histosync/internal/fileutil"
	"histosync/internal/services"
)

// Remote is an in-memory archive with the same contract as
// transport.Transport. Directories must exist before files can be listed.
type Remote struct {
	mu sync.Mutex

	files map[string][]byte
	dirs  map[string]bool

	// FetchErr and PutErr, when set, decide the outcome per remote path.
	FetchErr func(remotePath string) error
	PutErr   func(remotePath string) error
	// MakeDirErr, when set, refuses directory creation.
	MakeDirErr func(dir string) error
	// OnFetch runs after every successful fetch.
	OnFetch func(remotePath string)

	Fetches  []string
	Puts     []string
	MakeDirs []string
	Lists    int
	Closed   bool
}

// NewRemote returns an empty archive.
func NewRemote() *Remote {
	return &Remote{files: map[string][]byte{}, dirs: map[string]bool{}}
}

// AddDir creates an empty remote directory.
func (r *Remote) AddDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs[path.Clean(dir)] = true
}

// AddFile stores data at dir/name, creating dir.
func (r *Remote) AddFile(dir, name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir = path.Clean(dir)
	r.dirs[dir] = true
	r.files[path.Join(dir, name)] = append([]byte(nil), data...)
}

// Names returns the sorted names stored directly under dir.
func (r *Remote) Names(dir string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked(path.Clean(dir))
}

// Data returns the content stored at remotePath.
func (r *Remote) Data(remotePath string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[path.Clean(remotePath)]
	return data, ok
}

// FetchCount returns how many times remotePath was fetched successfully.
func (r *Remote) FetchCount(remotePath string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, p := range r.Fetches {
		if p == path.Clean(remotePath) {
			count++
		}
	}
	return count
}

// List implements transport.Transport.
func (r *Remote) List(_ context.Context, dir string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Lists++
	dir = path.Clean(dir)
	if !r.dirs[dir] {
		return nil, services.Wrap(services.ErrNotFound, "remote", "list", dir, nil)
	}
	return r.namesLocked(dir), nil
}

// Fetch implements transport.Transport.
func (r *Remote) Fetch(_ context.Context, remotePath, localPath string) error {
	remotePath = path.Clean(remotePath)
	r.mu.Lock()
	hook := r.FetchErr
	data, ok := r.files[remotePath]
	r.mu.Unlock()

	if hook != nil {
		if err := hook(remotePath); err != nil {
			return err
		}
	}
	if !ok {
		return services.Wrap(services.ErrRemoteState, "remote", "fetch", remotePath+" is not a regular file", nil)
	}
	if _, err := fileutil.WritePartial(localPath, strings.NewReader(string(data)), false); err != nil {
		return err
	}
	if err := fileutil.Commit(fileutil.PartPath(localPath), localPath); err != nil {
		return err
	}

	r.mu.Lock()
	r.Fetches = append(r.Fetches, remotePath)
	onFetch := r.OnFetch
	r.mu.Unlock()
	if onFetch != nil {
		onFetch(remotePath)
	}
	return nil
}

// Put implements transport.Transport.
func (r *Remote) Put(_ context.Context, localPath, remotePath string) error {
	remotePath = path.Clean(remotePath)
	r.mu.Lock()
	hook := r.PutErr
	r.mu.Unlock()
	if hook != nil {
		if err := hook(remotePath); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "remote", "put", "open local file", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	dir := path.Dir(remotePath)
	if !r.dirs[dir] {
		return services.Wrap(services.ErrRemoteState, "remote", "put", fmt.Sprintf("directory %s does not exist", dir), nil)
	}
	r.files[remotePath] = data
	r.Puts = append(r.Puts, remotePath)
	return nil
}

// MakeDir implements transport.Transport.
func (r *Remote) MakeDir(_ context.Context, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir = path.Clean(dir)
	if r.MakeDirErr != nil {
		if err := r.MakeDirErr(dir); err != nil {
			return err
		}
	}
	r.dirs[dir] = true
	r.MakeDirs = append(r.MakeDirs, dir)
	return nil
}

// Close implements transport.Transport.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

func (r *Remote) namesLocked(dir string) []string {
	var names []string
	for p := range r.files {
		if path.Dir(p) == dir && !fileutil.IsPartial(p) {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}
