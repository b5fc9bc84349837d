package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Downloader streams a remote extract to local disk with progress
// reporting. The write goes to a .part file first and is renamed on
// success so a failed transfer never leaves a half-written extract
// under the final name.
type Downloader struct {
	Client *http.Client
}

// NewDownloader returns a downloader without a fixed timeout; large
// extracts take hours and cancellation comes from the job context.
func NewDownloader() *Downloader {
	return &Downloader{Client: &http.Client{Timeout: 0}}
}

// Fetch downloads rawURL to dest, invoking onProgress with the running
// byte count and the total size. Total is -1 when the server does not
// send Content-Length. The context aborts the transfer mid-stream.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string, onProgress func(received, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("invalid download URL: %w", err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download failed: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("could not create download directory: %w", err)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("could not create download file: %w", err)
	}

	total := resp.ContentLength
	var received int64
	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(tmp)
				return fmt.Errorf("could not write download file: %w", writeErr)
			}
			received += int64(n)
			if onProgress != nil {
				onProgress(received, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("download interrupted: %w", readErr)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("could not flush download file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("could not close download file: %w", err)
	}
	return os.Rename(tmp, dest)
}

// FileNameForURL derives a local file name from the last path segment of
// a download URL, falling back to a generic name.
func FileNameForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "extract.osm.pbf"
	}
	segments := strings.Split(u.Path, "/")
	name := segments[len(segments)-1]
	if name == "" {
		return "extract.osm.pbf"
	}
	return name
}

// ExposeCurrentExtract makes src available under the canonical alias the
// import and tile tools read. A hard link is preferred; a copy is the
// fallback for filesystems that refuse links.
func ExposeCurrentExtract(src, alias string) error {
	if err := os.MkdirAll(filepath.Dir(alias), 0o755); err != nil {
		return err
	}
	if err := os.Remove(alias); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(src, alias); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(alias)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
