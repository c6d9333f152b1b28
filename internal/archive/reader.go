package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrEmptyArchive is returned when the archive file exists but has no content.
var ErrEmptyArchive = errors.New("archive file is empty")

// Reader streams GPX entries out of a gzip-compressed tar archive without
// extracting to disk, or out of a plain directory of GPX files when the
// path names one. Each call to Count or Stream opens the source fresh; a
// pass is not resumable mid-stream.
type Reader struct {
	path   string
	logger *logrus.Logger
}

// NewReader creates a reader for the archive or directory at the given
// path. The path is not validated until the first pass.
func NewReader(path string) *Reader {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Reader{
		path:   path,
		logger: logger,
	}
}

// Path returns the archive path this reader was created with.
func (r *Reader) Path() string {
	return r.path
}

// Count walks the source and counts regular entries with a .gpx extension
// (case-insensitive) without materializing their content.
func (r *Reader) Count() (int, error) {
	if dir, err := r.isDir(); err != nil {
		return 0, err
	} else if dir {
		return r.countDir()
	}

	tr, closeFn, err := r.open()
	if err != nil {
		return 0, err
	}
	defer closeFn()

	count := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("error reading tar: %w", err)
		}

		if isGPXEntry(header) {
			count++
		}
	}

	return count, nil
}

// Stream walks the source and invokes fn with the entry name and raw bytes
// of every .gpx entry. A non-nil error from fn aborts the pass and is
// returned to the caller; archive-level read errors abort it likewise.
func (r *Reader) Stream(fn func(name string, data []byte) error) error {
	if dir, err := r.isDir(); err != nil {
		return err
	} else if dir {
		return r.streamDir(fn)
	}

	tr, closeFn, err := r.open()
	if err != nil {
		return err
	}
	defer closeFn()

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar: %w", err)
		}

		if !isGPXEntry(header) {
			continue
		}

		data := make([]byte, header.Size)
		if _, err := io.ReadFull(tr, data); err != nil {
			return fmt.Errorf("error reading entry %s: %w", header.Name, err)
		}

		if err := fn(header.Name, data); err != nil {
			return err
		}
	}

	return nil
}

// open sets up the gzip/tar reader chain and returns a cleanup function.
// Failures here distinguish a missing file, an empty file and a corrupt
// gzip stream.
func (r *Reader) open() (*tar.Reader, func(), error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	if info.Size() == 0 {
		file.Close()
		return nil, nil, ErrEmptyArchive
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}

	closeFn := func() {
		gz.Close()
		file.Close()
	}

	return tar.NewReader(gz), closeFn, nil
}

// isDir reports whether the configured path names a directory source.
func (r *Reader) isDir() (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return false, fmt.Errorf("failed to open archive: %w", err)
	}
	return info.IsDir(), nil
}

// countDir counts .gpx files under the directory tree.
func (r *Reader) countDir() (int, error) {
	count := 0
	err := filepath.WalkDir(r.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(path), ".gpx") {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error walking gpx directory: %w", err)
	}
	return count, nil
}

// streamDir walks the directory tree and invokes fn per .gpx file, mirroring
// the archive pass.
func (r *Reader) streamDir(fn func(name string, data []byte) error) error {
	return filepath.WalkDir(r.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".gpx") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("error reading file %s: %w", path, err)
		}
		return fn(path, data)
	})
}

// isGPXEntry reports whether a tar header names a regular .gpx file.
func isGPXEntry(header *tar.Header) bool {
	return header.Typeflag == tar.TypeReg &&
		strings.HasSuffix(strings.ToLower(header.Name), ".gpx")
}
