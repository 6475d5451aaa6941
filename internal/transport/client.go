// Package transport uploads a document to the verification service and
// exposes the response body as a stream of raw chunks.
//
// Reading happens on a dedicated goroutine that yields chunks through a
// channel. Closing the stream cancels the pending read and releases the
// body. Transfers are never retried.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/refcheck/internal/logging"
)

const (
	// DefaultEndpoint is where the service listens in a local deployment.
	DefaultEndpoint = "http://localhost:8000/stream-verify/"

	defaultReadBuffer = 32 * 1024
	maxErrorBody      = 512
)

// ErrIdleTimeout ends a stream that produced no bytes within the idle window.
var ErrIdleTimeout = errors.New("stream idle timeout")

// Error is a transport-level failure. It is always fatal to the run.
type Error struct {
	Op         string // "upload" or "read"
	StatusCode int    // non-zero for a non-2xx response
	Body       string // excerpt of the error response
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: server returned %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: server returned %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op + ": transport error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	Endpoint       string
	ConnectTimeout time.Duration // dial timeout; the stream itself has no deadline
	IdleTimeout    time.Duration // 0 disables
	ReadBuffer     int
	MinInterval    time.Duration // minimum spacing between uploads; 0 disables
}

// Upload is one document submission.
type Upload struct {
	Path     string    // read when Body is nil
	FileName string    // defaults to the base name of Path
	Body     io.Reader // document bytes
	Model    string    // sent as model_name
}

// Client opens verification streams.
type Client struct {
	endpoint    string
	client      *http.Client
	limiter     *rate.Limiter
	idleTimeout time.Duration
	readBuffer  int
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = defaultReadBuffer
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ConnectTimeout > 0 {
		tr.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	}

	return &Client{
		endpoint:    cfg.Endpoint,
		client:      &http.Client{Transport: tr}, // no Timeout: the body is unbounded
		limiter:     rate.NewLimiter(limit, 1),
		idleTimeout: cfg.IdleTimeout,
		readBuffer:  cfg.ReadBuffer,
	}
}

// Endpoint returns the upload URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Open submits the upload and returns the response stream. Every error is
// a *Error. The returned stream must be closed.
func (c *Client) Open(ctx context.Context, up Upload) (*Stream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: "upload", Err: fmt.Errorf("rate limiter: %w", err)}
	}

	body, contentType, err := encodeUpload(up)
	if err != nil {
		return nil, &Error{Op: "upload", Err: err}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, body)
	if err != nil {
		cancel()
		return nil, &Error{Op: "upload", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")

	logging.Debug("upload", "endpoint", c.endpoint, "model", up.Model, "bytes", body.Len())

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, &Error{Op: "upload", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		logging.Error("upload rejected", "status", resp.StatusCode, "body", string(excerpt))
		return nil, &Error{
			Op:         "upload",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	s := newStream(resp.Body, cancel, c.readBuffer, c.idleTimeout)
	s.StatusCode = resp.StatusCode
	go s.run(reqCtx)
	return s, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeUpload builds the multipart body with the fields "file" and
// "model_name".
func encodeUpload(up Upload) (*bytes.Buffer, string, error) {
	src := up.Body
	name := up.FileName
	if src == nil {
		if up.Path == "" {
			return nil, "", errors.New("no document to upload")
		}
		f, err := os.Open(up.Path)
		if err != nil {
			return nil, "", fmt.Errorf("open document: %w", err)
		}
		defer f.Close()
		src = f
	}
	if name == "" {
		name = filepath.Base(up.Path)
	}
	if name == "" || name == "." {
		name = "document.pdf"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("read document: %w", err)
	}
	if err := w.WriteField("model_name", up.Model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
