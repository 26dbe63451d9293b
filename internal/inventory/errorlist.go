package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrorList is the append-only record of basenames that must never be
// processed again. The file holds one basename per line.
type ErrorList struct {
	path string
}

// NewErrorList returns an ErrorList stored at path.
func NewErrorList(path string) *ErrorList {
	return &ErrorList{path: path}
}

// Path returns the backing file.
func (l *ErrorList) Path() string {
	return l.path
}

// Read returns the deduplicated basenames, creating an empty file when none
// exists. Blank lines and surrounding whitespace are ignored.
func (l *ErrorList) Read() (map[string]struct{}, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("error list directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error list: %w", err)
	}
	defer file.Close()

	names := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read error list: %w", err)
	}
	return names, nil
}

// Sorted returns the basenames in lexical order.
func (l *ErrorList) Sorted() ([]string, error) {
	names, err := l.Read()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Add appends basename as a single line.
func (l *ErrorList) Add(basename string) error {
	basename = strings.TrimSpace(basename)
	if basename == "" || strings.ContainsAny(basename, "\r\n") {
		return errors.New("error list: basename must be a single non-empty line")
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("error list directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open error list: %w", err)
	}
	if _, err := file.WriteString(basename + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("append error list: %w", err)
	}
	return file.Close()
}
