package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ChunkSize is the size of a single read/write during a transfer.
const ChunkSize = 256 * 1024

// Request describes one transfer.
type Request struct {
	URL         string
	Destination string
}

// Result of a transfer. Cancelled is a normal outcome, not an error.
type Result struct {
	Path      string
	Bytes     int64
	Cancelled bool
}

// Downloader streams assets to disk in fixed-size chunks
type Downloader struct {
	client    *http.Client
	userAgent string
	chunkSize int
}

// NewDownloader creates a downloader. A nil client gets a default one
// without an overall timeout, since artifacts may be large.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		client:    client,
		userAgent: "swapup",
		chunkSize: ChunkSize,
	}
}

// WithUserAgent overrides the User-Agent header
func (d *Downloader) WithUserAgent(ua string) *Downloader {
	if ua != "" {
		d.userAgent = ua
	}
	return d
}

// WithChunkSize overrides ChunkSize. Values <= 0 are ignored.
func (d *Downloader) WithChunkSize(n int) *Downloader {
	if n > 0 {
		d.chunkSize = n
	}
	return d
}

// DownloadAsset downloads asset into dir under the asset's own name.
func (d *Downloader) DownloadAsset(ctx context.Context, asset Asset, dir string, sink ProgressSink) (Result, error) {
	return d.Download(ctx, Request{
		URL:         asset.DownloadURL,
		Destination: filepath.Join(dir, filepath.Base(asset.Name)),
	}, sink)
}

// Download streams req.URL to req.Destination.
//
// Data goes to an exclusively locked sibling file that is renamed onto the
// destination only after the whole body arrived. Cancellation is checked
// before each chunk is requested and after each chunk is written; on
// cancellation or failure the partial file is removed and nothing is left at
// the destination.
func (d *Downloader) Download(ctx context.Context, req Request, sink ProgressSink) (Result, error) {
	if req.Destination == "" {
		return Result{}, Errorf(KindTransfer, "download", "no destination for %s", req.URL)
	}
	if ctx.Err() != nil {
		return Result{Cancelled: true}, nil
	}

	log.Debugf("starting download from %s", req.URL)

	if err := os.MkdirAll(filepath.Dir(req.Destination), 0755); err != nil {
		return Result{}, NewError(KindTransfer, "download", fmt.Errorf("failed to create destination directory: %w", err))
	}
	// The destination is created fresh; an older file must not survive a
	// cancelled or failed transfer.
	if err := os.Remove(req.Destination); err != nil && !os.IsNotExist(err) {
		return Result{}, NewError(KindTransfer, "download", fmt.Errorf("failed to remove old destination: %w", err))
	}

	partial := fmt.Sprintf("%s.%s.part", req.Destination, uuid.NewString())
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return Result{}, NewError(KindTransfer, "download", fmt.Errorf("failed to create destination file %q: %w", partial, err))
	}
	if err := lockFile(out); err != nil {
		_ = out.Close()
		_ = os.Remove(partial)
		return Result{}, NewError(KindTransfer, "download", fmt.Errorf("failed to lock %q: %w", partial, err))
	}

	n, cancelled, err := d.stream(ctx, req.URL, out, sink)
	if err == nil && !cancelled {
		err = out.Sync()
	}
	if uerr := unlockFile(out); uerr != nil {
		log.Debugf("error unlocking %q: %v", partial, uerr)
	}
	if cerr := out.Close(); cerr != nil && err == nil && !cancelled {
		err = cerr
	}

	if cancelled || err != nil {
		if rerr := os.Remove(partial); rerr != nil && !os.IsNotExist(rerr) {
			log.Warnf("failed to remove partial download %q: %v", partial, rerr)
		}
		if cancelled {
			log.Infof("download of %s cancelled after %d bytes", req.URL, n)
			sink.Report("Download cancelled")
			return Result{Cancelled: true, Bytes: n}, nil
		}
		return Result{}, NewError(KindTransfer, "download", err)
	}

	if err := os.Rename(partial, req.Destination); err != nil {
		_ = os.Remove(partial)
		return Result{}, NewError(KindTransfer, "download", fmt.Errorf("failed to move download into place: %w", err))
	}

	sink.ReportPercent("Finished downloading", 100)
	log.Infof("successfully downloaded %d bytes to %s", n, req.Destination)
	return Result{Path: req.Destination, Bytes: n}, nil
}

// stream copies the response body into out chunk by chunk.
func (d *Downloader) stream(ctx context.Context, url string, out io.Writer, sink ProgressSink) (int64, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("User-Agent", d.userAgent)
	httpReq.Header.Set("Accept", "application/octet-stream")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total > 0 {
		sink.ReportTransfer(0, total)
	} else {
		sink.Report("Downloading")
	}

	buf := make([]byte, d.chunkSize)
	var done int64
	for {
		if ctx.Err() != nil {
			return done, true, nil
		}

		// Only io.EOF ends the body; io.ErrUnexpectedEOF is a cut connection.
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return done, false, fmt.Errorf("failed to write chunk: %w", werr)
			}
			done += int64(n)
			sink.ReportTransfer(done, total)

			if ctx.Err() != nil {
				return done, true, nil
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return done, true, nil
			}
			return done, false, fmt.Errorf("failed to read response body: %w", rerr)
		}
	}

	if total > 0 && done != total {
		return done, false, fmt.Errorf("short transfer: got %d of %d bytes", done, total)
	}
	return done, false, nil
}
