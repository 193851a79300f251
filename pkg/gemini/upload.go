package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"tenniscoach/pkg/apierrors"
	"tenniscoach/pkg/retry"
)

// Resumable upload protocol headers.
const (
	hdrUploadProtocol     = "X-Goog-Upload-Protocol"
	hdrUploadCommand      = "X-Goog-Upload-Command"
	hdrUploadURL          = "X-Goog-Upload-URL"
	hdrUploadOffset       = "X-Goog-Upload-Offset"
	hdrUploadStatus       = "X-Goog-Upload-Status"
	hdrUploadSizeReceived = "X-Goog-Upload-Size-Received"
	hdrUploadLength       = "X-Goog-Upload-Header-Content-Length"
	hdrUploadContentType  = "X-Goog-Upload-Header-Content-Type"
)

// ProgressFunc receives the fraction of bytes the server has acknowledged,
// in [0, 1]. Reported values never decrease, even across retried chunks.
type ProgressFunc func(fraction float64)

// UploadOptions configures one upload.
type UploadOptions struct {
	DisplayName string
	MIMEType    string
	Progress    ProgressFunc
}

// UploadVideo uploads the file at path and waits until the server finishes
// processing it. Convenience wrapper over UploadFile.
func (c *Client) UploadVideo(ctx context.Context, path string, opts UploadOptions) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apierrors.NewErrorWithCause(apierrors.ErrorTypeBadRequest, err, "opening video file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apierrors.NewErrorWithCause(apierrors.ErrorTypeBadRequest, err, "stat video file")
	}
	if opts.DisplayName == "" {
		opts.DisplayName = filepath.Base(path)
	}
	if opts.MIMEType == "" {
		opts.MIMEType = mimeTypeForPath(path)
	}
	return c.UploadFile(ctx, f, info.Size(), opts)
}

// UploadFile runs the resumable upload state machine: initiate a session,
// transfer chunks from the server-acknowledged offset, finalize with the last
// chunk, then poll until processing completes. The reader must support
// re-reading arbitrary offsets because a retried chunk restarts from the
// committed offset, never from local bookkeeping.
func (c *Client) UploadFile(ctx context.Context, r io.ReaderAt, totalBytes int64, opts UploadOptions) (*File, error) {
	start := time.Now()
	file, err := c.uploadFile(ctx, r, totalBytes, opts)
	c.observe("upload", start, err)
	return file, err
}

func (c *Client) uploadFile(ctx context.Context, r io.ReaderAt, totalBytes int64, opts UploadOptions) (*File, error) {
	if totalBytes <= 0 {
		return nil, apierrors.NewError(apierrors.ErrorTypeBadRequest, "upload size must be positive")
	}

	sess := &UploadSession{
		ID:         uuid.NewString(),
		TotalBytes: totalBytes,
		State:      UploadStateInitiated,
	}
	c.logger.Info("upload %s: starting session (%d bytes, %s)", sess.ID, totalBytes, opts.DisplayName)

	uploadURL, err := retry.Do(ctx, c.callPolicy, func(ctx context.Context) (string, error) {
		return c.startUpload(ctx, totalBytes, opts)
	}, retry.WithLogger(c.logger), retry.WithOnRetry(func(int, error) { c.rec.IncRetry("upload_start") }))
	if err != nil {
		sess.State = UploadStateFailed
		return nil, err
	}
	sess.UploadURL = uploadURL
	sess.State = UploadStateUploading

	reportProgress(opts.Progress, sess.progress())

	var file *File
	for sess.BytesCommitted < sess.TotalBytes {
		f, err := c.transferChunk(ctx, r, sess)
		if err != nil {
			sess.State = UploadStateFailed
			return nil, err
		}
		reportProgress(opts.Progress, sess.progress())
		if f != nil {
			file = f
		}
	}

	if file == nil {
		// Finalize acknowledged the bytes but the file resource never arrived.
		sess.State = UploadStateFailed
		return nil, apierrors.NewError(apierrors.ErrorTypeProtocol, "upload finalized without a file resource")
	}

	sess.State = UploadStateProcessing
	c.logger.Info("upload %s: transfer complete, waiting for processing of %s", sess.ID, file.Name)

	file, err = c.waitForProcessing(ctx, file.Name)
	if err != nil {
		sess.State = UploadStateFailed
		return nil, err
	}
	sess.State = UploadStateReady
	return file, nil
}

// startUpload initiates a resumable session and returns the session URL.
func (c *Client) startUpload(ctx context.Context, totalBytes int64, opts UploadOptions) (string, error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	body, err := marshalBody(fileEnvelope{File: File{DisplayName: opts.DisplayName}})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/upload/%s/files", c.uploadBaseURL, apiVersion)
	req, err := c.newRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(hdrUploadProtocol, "resumable")
	req.Header.Set(hdrUploadCommand, "start")
	req.Header.Set(hdrUploadLength, strconv.FormatInt(totalBytes, 10))
	req.Header.Set(hdrUploadContentType, opts.MIMEType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apierrors.Classify(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", responseError(resp)
	}
	uploadURL := resp.Header.Get(hdrUploadURL)
	if uploadURL == "" {
		return "", apierrors.NewError(apierrors.ErrorTypeProtocol, "upload initiation response missing session URL")
	}
	return uploadURL, nil
}

// transferChunk pushes the next chunk under retry. Before any re-attempt the
// committed offset is re-queried from the server; the acknowledged offset is
// the only resumption anchor, so bytes the server already holds are never
// resent and lost in-flight bytes are retransmitted.
func (c *Client) transferChunk(ctx context.Context, r io.ReaderAt, sess *UploadSession) (*File, error) {
	dirty := false
	return retry.Do(ctx, c.callPolicy, func(ctx context.Context) (*File, error) {
		if dirty {
			offset, finalized, file, err := c.queryUploadStatus(ctx, sess.UploadURL)
			if err != nil {
				return nil, err
			}
			sess.commit(offset)
			dirty = false
			if finalized {
				// The failed attempt actually landed and finalized server-side.
				sess.commit(sess.TotalBytes)
				return file, nil
			}
			if sess.BytesCommitted >= sess.TotalBytes {
				return nil, apierrors.NewError(apierrors.ErrorTypeProtocol, "server reports all bytes received but upload not finalized")
			}
		}
		file, err := c.putChunk(ctx, r, sess)
		if err != nil {
			dirty = true
			return nil, err
		}
		return file, nil
	}, retry.WithLogger(c.logger), retry.WithOnRetry(func(int, error) { c.rec.IncRetry("upload_transfer") }))
}

// putChunk sends one chunk starting at the committed offset. The last chunk
// carries the combined "upload, finalize" command and yields the file resource.
func (c *Client) putChunk(ctx context.Context, r io.ReaderAt, sess *UploadSession) (*File, error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	start := sess.BytesCommitted
	end := start + c.chunkSize
	if end > sess.TotalBytes {
		end = sess.TotalBytes
	}
	last := end == sess.TotalBytes

	command := "upload"
	if last {
		command = "upload, finalize"
		sess.State = UploadStateFinalizing
	}

	req, err := c.newRequest(ctx, http.MethodPut, sess.UploadURL, io.NewSectionReader(r, start, end-start))
	if err != nil {
		return nil, err
	}
	req.ContentLength = end - start
	req.Header.Set(hdrUploadCommand, command)
	req.Header.Set(hdrUploadOffset, strconv.FormatInt(start, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var file *File
	if last {
		var envelope fileEnvelope
		if err := decodeJSONBody(resp.Body, &envelope); err != nil {
			return nil, err
		}
		file = &envelope.File
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	// Prefer the server's acknowledged byte count when it reports one.
	committed := end
	if v := resp.Header.Get(hdrUploadSizeReceived); v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			committed = n
		}
	}
	sess.commit(committed)
	c.rec.AddUploadBytes(end - start)
	c.logger.Debug("upload %s: committed %d/%d bytes", sess.ID, sess.BytesCommitted, sess.TotalBytes)
	return file, nil
}

// queryUploadStatus asks the session URL for the committed offset. A finalized
// session returns the file resource directly.
func (c *Client) queryUploadStatus(ctx context.Context, uploadURL string) (offset int64, finalized bool, file *File, err error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPut, uploadURL, nil)
	if err != nil {
		return 0, false, nil, err
	}
	req.Header.Set(hdrUploadCommand, "query")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, nil, apierrors.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false, nil, responseError(resp)
	}

	if v := resp.Header.Get(hdrUploadSizeReceived); v != "" {
		offset, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, nil, apierrors.NewErrorWithCause(apierrors.ErrorTypeProtocol, err, "parsing committed offset")
		}
	}

	switch status := resp.Header.Get(hdrUploadStatus); status {
	case "final":
		var envelope fileEnvelope
		if err := decodeJSONBody(resp.Body, &envelope); err != nil {
			return 0, false, nil, err
		}
		return offset, true, &envelope.File, nil
	case "active", "":
		io.Copy(io.Discard, resp.Body)
		return offset, false, nil, nil
	default:
		io.Copy(io.Discard, resp.Body)
		return 0, false, nil, apierrors.NewError(apierrors.ErrorTypeProtocol, fmt.Sprintf("upload session in unexpected state %q", status))
	}
}

// waitForProcessing polls file metadata until the server reports ACTIVE.
// Transient poll failures are retried under the lenient poll policy; a FAILED
// state is a processing error, distinct from transport failures, and the poll
// budget bounds the total wait.
func (c *Client) waitForProcessing(ctx context.Context, name string) (*File, error) {
	for poll := 0; poll < c.maxPolls; poll++ {
		if poll > 0 {
			select {
			case <-ctx.Done():
				return nil, apierrors.NewCanceledError(ctx.Err())
			case <-time.After(c.pollInterval):
			}
		}

		file, err := retry.Do(ctx, c.pollPolicy, func(ctx context.Context) (*File, error) {
			return c.getFile(ctx, name)
		}, retry.WithLogger(c.logger), retry.WithOnRetry(func(int, error) { c.rec.IncRetry("poll") }))
		if err != nil {
			return nil, err
		}

		switch file.State {
		case FileStateActive:
			return file, nil
		case FileStateFailed:
			msg := "server-side media processing failed"
			if file.Error != nil && file.Error.Message != "" {
				msg = fmt.Sprintf("server-side media processing failed: %s", file.Error.Message)
			}
			return nil, apierrors.NewError(apierrors.ErrorTypeProcessing, msg)
		}
		c.logger.Debug("file %s still processing (poll %d/%d)", name, poll+1, c.maxPolls)
	}
	return nil, apierrors.NewError(apierrors.ErrorTypeProcessing,
		fmt.Sprintf("file %s not ready after %d polls", name, c.maxPolls))
}

func reportProgress(fn ProgressFunc, fraction float64) {
	if fn != nil {
		fn(fraction)
	}
}

// mimeTypeForPath maps common video extensions. The server rejects uploads it
// cannot identify, so unknown extensions fall back to a generic video type.
func mimeTypeForPath(path string) string {
	switch filepath.Ext(path) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}
