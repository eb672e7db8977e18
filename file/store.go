package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/opd-ai/wirechat/limits"
	"github.com/sirupsen/logrus"
)

// PartSuffix marks a destination file that has not been completed.
const PartSuffix = ".part"

// ErrDirectoryTraversal indicates an attempt to access files outside allowed directories.
var ErrDirectoryTraversal = errors.New("path contains directory traversal")

// ErrFileNameTooLong indicates that a file name exceeds the maximum allowed length.
var ErrFileNameTooLong = errors.New("file name too long")

// ErrInvalidFileName indicates an empty or non UTF-8 file name.
var ErrInvalidFileName = errors.New("invalid file name")

// ErrNotRegularFile indicates a send was requested for a directory or device.
var ErrNotRegularFile = errors.New("not a regular file")

// TransferIOError reports a resource failure during a transfer. It is
// recovered locally and never ends the connection.
type TransferIOError struct {
	Op   string
	Name string
	Err  error
}

func (e *TransferIOError) Error() string {
	return fmt.Sprintf("transfer %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *TransferIOError) Unwrap() error {
	return e.Err
}

// Sink is a writable destination for one incoming file.
type Sink interface {
	io.Writer
	// Commit closes the sink and publishes the file under its final name.
	Commit() (string, error)
	// Discard closes the sink and removes the partial data.
	Discard() error
	// Abandon closes the sink and leaves the partial data marked incomplete.
	Abandon() error
}

// Source is a readable origin for one outgoing file.
type Source interface {
	io.ReadCloser
	Name() string
	Size() uint64
}

// Store yields destinations and sources by name.
type Store interface {
	Create(name string) (Sink, error)
	Open(path string) (Source, error)
}

// SanitizeName validates a peer supplied file name and reduces it to a bare
// file name safe to create inside a download directory.
func SanitizeName(name string) (string, error) {
	if !utf8.ValidString(name) || strings.ContainsRune(name, 0) {
		return "", ErrInvalidFileName
	}
	if err := limits.ValidateFileName(name); err != nil {
		if errors.Is(err, limits.ErrMessageTooLarge) {
			return "", fmt.Errorf("%w: %v", ErrFileNameTooLong, err)
		}
		return "", ErrInvalidFileName
	}

	normalized := strings.ReplaceAll(name, `\`, "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return "", ErrDirectoryTraversal
		}
	}

	base := filepath.Base(filepath.Clean(normalized))
	if base == "." || base == "/" || base == "" {
		return "", ErrInvalidFileName
	}
	return base, nil
}

// DirStore keeps received files in a single directory and opens outgoing
// files from the local filesystem.
type DirStore struct {
	root string
}

// NewDirStore creates root if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirStore{root: root}, nil
}

// Root returns the download directory.
func (d *DirStore) Root() string {
	return d.root
}

// Create opens <root>/<name>.part for writing.
func (d *DirStore) Create(name string) (Sink, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	final := filepath.Join(d.root, clean)
	part := final + PartSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "DirStore.Create",
		"file_name": clean,
		"part_path": part,
	}).Debug("Creating file for incoming transfer")

	return &dirSink{f: f, part: part, final: final}, nil
}

// Open opens a local file for an outgoing transfer.
func (d *DirStore) Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	return &fileSource{File: f, name: filepath.Base(path), size: uint64(info.Size())}, nil
}

type dirSink struct {
	f     *os.File
	part  string
	final string
}

func (s *dirSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Commit publishes the file under its final name. An existing file is never
// replaced; the name gets a " (n)" suffix before the extension instead.
func (s *dirSink) Commit() (string, error) {
	if err := s.f.Close(); err != nil {
		return "", err
	}
	final, err := freePath(s.final)
	if err != nil {
		return "", err
	}
	if final != s.final {
		logrus.WithFields(logrus.Fields{
			"function":  "dirSink.Commit",
			"requested": s.final,
			"path":      final,
		}).Warn("Destination exists, saving under a new name")
	}
	if err := os.Rename(s.part, final); err != nil {
		return "", err
	}
	return final, nil
}

// maxRenameAttempts bounds the " (n)" suffixes tried by freePath.
const maxRenameAttempts = 1000

func freePath(path string) (string, error) {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path, nil
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; n <= maxRenameAttempts; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", os.ErrExist, path)
}

func (s *dirSink) Discard() error {
	closeErr := s.f.Close()
	if err := os.Remove(s.part); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}

func (s *dirSink) Abandon() error {
	return s.f.Close()
}

type fileSource struct {
	*os.File
	name string
	size uint64
}

func (s *fileSource) Name() string { return s.name }

func (s *fileSource) Size() uint64 { return s.size }
