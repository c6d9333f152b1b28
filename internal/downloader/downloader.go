package downloader

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// downloadTimeout bounds one archive fetch. Archives run to hundreds of
// megabytes, so this is generous.
const downloadTimeout = 10 * time.Minute

// Downloader fetches the GPX archive from object storage when it is not
// present locally, so a fresh deployment can bootstrap itself.
type Downloader struct {
	client *http.Client
	logger *logrus.Logger
}

// NewDownloader creates a new archive downloader.
func NewDownloader() *Downloader {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Downloader{
		client: &http.Client{
			Timeout: downloadTimeout,
		},
		logger: logger,
	}
}

// EnsureArchive makes sure the archive exists at archivePath, downloading
// it from url when missing. A no-op when the file is already present or no
// url is configured.
func (d *Downloader) EnsureArchive(archivePath, url string) error {
	if _, err := os.Stat(archivePath); err == nil {
		d.logger.WithField("archive_path", archivePath).Debug("Archive already present")
		return nil
	}

	if url == "" {
		return fmt.Errorf("archive %s does not exist and no download URL is configured", archivePath)
	}

	d.logger.WithFields(logrus.Fields{
		"archive_path": archivePath,
		"url":          url,
	}).Info("Archive not found locally, downloading")

	return d.downloadFile(url, archivePath)
}

// downloadFile streams url into filePath, removing the partial file on
// failure so a retry starts clean.
func (d *Downloader) downloadFile(url, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "trailhead/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive download failed with status %s", resp.Status)
	}

	out, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(filePath)
		return fmt.Errorf("failed to write archive: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"archive_path": filePath,
		"bytes":        written,
	}).Info("Archive downloaded")

	return nil
}
