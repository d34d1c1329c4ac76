package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/netty/analyst/internal/models"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"
	// Large captures take a while to upload and analyse
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxUpload matches the service's own upload ceiling
	DefaultMaxUpload int64 = 500 << 20
)

// ExportKind selects the report format of an export
type ExportKind string

const (
	ExportPDF ExportKind = "pdf"
	ExportCSV ExportKind = "csv"
)

// Export is a downloaded report. Saving it is up to the caller.
type Export struct {
	Kind        ExportKind
	FileName    string
	ContentType string
	Data        []byte
}

type Options struct {
	BaseURL        string
	Timeout        time.Duration
	MaxUploadBytes int64
	Logger         *log.Logger
	// Transport overrides the underlying round tripper
	Transport http.RoundTripper
}

// Client is the single point of contact with the analysis service. Every call
// is a single attempt; failures come back as *Error.
type Client struct {
	base      *url.URL
	http      *http.Client
	logger    *log.Logger
	maxUpload int64
	now       func() time.Time
}

func NewClient(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse service url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("service url %q must be an absolute http(s) url", raw)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	next := opts.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: &loggingTransport{next: next, logger: logger},
		},
		logger:    logger,
		maxUpload: maxUpload,
		now:       time.Now,
	}, nil
}

// BaseURL returns the service root the client talks to
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) port() string {
	if p := c.base.Port(); p != "" {
		return p
	}
	if c.base.Scheme == "https" {
		return "443"
	}
	return "80"
}

// Upload sends the capture file at path and returns the service's analysis of it
func (c *Client) Upload(ctx context.Context, path string) (*models.UploadResponse, error) {
	const op = "upload"

	f, err := os.Open(path)
	if err != nil {
		return nil, malformed(op, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, malformed(op, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, malformed(op, fmt.Errorf("%s is a directory", path))
	}
	if info.Size() > c.maxUpload {
		f.Close()
		return nil, malformed(op, fmt.Errorf("%s is %d bytes, the limit is %d", filepath.Base(path), info.Size(), c.maxUpload))
	}

	c.logger.Info("Uploading file", "file", filepath.Base(path), "size", info.Size())

	// Stream the multipart body so large captures are never held in memory
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		if err != nil {
			pw.CloseWithError(&bodyError{err: err})
			return
		}
		pw.Close()
	}()

	req, err := c.newRequest(ctx, op, http.MethodPost, "/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out models.UploadResponse
	if err := c.doJSON(op, req, &out); err != nil {
		pr.Close()
		return nil, err
	}
	if out.Analysis != nil {
		c.warnPartial(op, out.Analysis.Skipped, out.Analysis.Timeline)
	}
	c.logger.Info("Upload successful", "file", out.Filename)
	return &out, nil
}

// Current fetches the analysis the service is holding from an earlier upload
func (c *Client) Current(ctx context.Context) (*models.UploadResponse, error) {
	const op = "current"

	req, err := c.newRequest(ctx, op, http.MethodGet, "/analysis/current", nil)
	if err != nil {
		return nil, err
	}
	var out models.UploadResponse
	if err := c.doJSON(op, req, &out); err != nil {
		return nil, err
	}
	if out.Analysis != nil {
		c.warnPartial(op, out.Analysis.Skipped, out.Analysis.Timeline)
	}
	return &out, nil
}

// Chat asks the assistant about the current analysis and returns its answer
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	const op = "chat"

	if strings.TrimSpace(message) == "" {
		return "", malformed(op, errors.New("message is empty"))
	}
	req, err := c.newJSONRequest(ctx, op, "/chat", map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := c.doJSON(op, req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Filter re-runs the analysis restricted to protocol. A result whose Error
// field is set is still a successful call.
func (c *Client) Filter(ctx context.Context, protocol string) (*models.FilterResult, error) {
	const op = "filter"

	protocol = strings.ToUpper(strings.TrimSpace(protocol))
	if !models.SupportedProtocol(protocol) {
		return nil, malformed(op, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, protocol))
	}
	req, err := c.newJSONRequest(ctx, op, "/analysis/filter", map[string]string{"protocol": protocol})
	if err != nil {
		return nil, err
	}
	var out models.FilterResult
	if err := c.doJSON(op, req, &out); err != nil {
		return nil, err
	}
	if out.Protocol == "" {
		out.Protocol = protocol
	}
	c.warnPartial(op, out.Skipped, out.Timeline)
	return &out, nil
}

// Export downloads a report of the current analysis
func (c *Client) Export(ctx context.Context, kind ExportKind) (*Export, error) {
	op := "export_" + string(kind)

	if kind != ExportPDF && kind != ExportCSV {
		return nil, malformed(op, fmt.Errorf("unknown export kind %q", kind))
	}
	req, err := c.newRequest(ctx, op, http.MethodGet, "/export/"+string(kind), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.unreachable(op, err)
	}
	return &Export{
		Kind:        kind,
		FileName:    ExportFileName(kind, c.now()),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// ExportFileName is the suggested local name of a report downloaded at t
func ExportFileName(kind ExportKind, t time.Time) string {
	return fmt.Sprintf("ogpw_analysis_%s.%s", t.UTC().Format("2006-01-02"), kind)
}

// Health reports whether the service answers its liveness endpoint
func (c *Client) Health(ctx context.Context) (bool, error) {
	const op = "health"

	req, err := c.newRequest(ctx, op, http.MethodGet, "/health", nil)
	if err != nil {
		return false, err
	}
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.doJSON(op, req, &out); err != nil {
		return false, err
	}
	return out.Status == "" || out.Status == "healthy", nil
}

func (c *Client) newRequest(ctx context.Context, op, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, malformed(op, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, op, path string, payload interface{}) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, malformed(op, err)
	}
	req, err := c.newRequest(ctx, op, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// send performs req and maps every failure onto the error taxonomy
func (c *Client) send(op string, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		var be *bodyError
		if errors.As(err, &be) {
			return nil, malformed(op, be.err)
		}
		return nil, c.unreachable(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, rejected(op, resp)
	}
	return resp, nil
}

func (c *Client) doJSON(op string, req *http.Request, out interface{}) error {
	resp, err := c.send(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unexpected(op, fmt.Errorf("decode %s response: %w", op, err))
	}
	return nil
}

// warnPartial logs the parts of a decoded result that were dropped
func (c *Client) warnPartial(op string, skipped []string, timeline []models.TimelineSample) {
	if len(skipped) > 0 {
		c.logger.Warn("Ignoring undecodable sections", "op", op, "sections", skipped)
	}
	if n := models.UndatedSamples(timeline); n > 0 {
		c.logger.Warn("Timeline samples with unreadable timestamps", "op", op, "count", n)
	}
}
