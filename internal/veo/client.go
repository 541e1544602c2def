// Package veo runs video generation against the Gemini API as a
// long-running operation: submit the request, re-issue the status call
// with the last operation handle at a fixed interval until the vendor
// reports done or an error, then fetch the binary payload over a
// key-authenticated URL and register it as a process-local blob handle.
package veo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"
)

// BlobSink receives downloaded payloads and hands back local handle ids.
type BlobSink interface {
	Put(data []byte, mimeType string) string
}

// Keyring resolves the credential used for vendor calls and the
// authenticated download.
type Keyring interface {
	Key() (string, bool)
}

type ImageAttachment struct {
	Data     []byte
	MIMEType string
}

type GenerationConfig struct {
	AspectRatio string
	Resolution  string
}

// GenerationRequest is immutable once submitted.
type GenerationRequest struct {
	Prompt string
	Image  *ImageAttachment
	Config GenerationConfig
}

// Generation is the settled outcome: a dereferenceable local handle
// wrapping the downloaded video.
type Generation struct {
	BlobID    string
	MIMEType  string
	Size      int64
	SourceURI string
}

const (
	defaultModel        = "veo-2.0-generate-001"
	defaultPollInterval = 5 * time.Second
)

type Client struct {
	vendor       VendorClient
	keys         Keyring
	sink         BlobSink
	httpClient   *http.Client
	model        string
	pollInterval time.Duration
}

type Options struct {
	Model        string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

func NewClient(vendor VendorClient, keys Keyring, sink BlobSink, opts Options) *Client {
	c := &Client{
		vendor:       vendor,
		keys:         keys,
		sink:         sink,
		httpClient:   opts.HTTPClient,
		model:        opts.Model,
		pollInterval: opts.PollInterval,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return c
}

// Generate runs one request to a terminal state and returns the local
// handle. On failure it returns exactly one of AuthError,
// RemoteOperationError, NetworkError or MissingPayloadError, or the
// context's error when the caller aborts the wait.
func (c *Client) Generate(ctx context.Context, req GenerationRequest) (*Generation, error) {
	key, ok := c.keys.Key()
	if !ok {
		return nil, &AuthError{Message: "no API key configured"}
	}

	// The image argument stays nil when there is no attachment; the
	// submit payload is otherwise identical in shape.
	var image *genai.Image
	if req.Image != nil {
		image = &genai.Image{
			ImageBytes: req.Image.Data,
			MIMEType:   req.Image.MIMEType,
		}
	}

	config := &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		AspectRatio:     req.Config.AspectRatio,
		Resolution:      req.Config.Resolution,
		DurationSeconds: genai.Ptr(int32(8)),
	}

	op, err := c.vendor.GenerateVideos(ctx, key, c.model, req.Prompt, image, config)
	if err != nil {
		return nil, classifyVendorErr(err)
	}

	op, err = c.poll(ctx, key, op)
	if err != nil {
		return nil, err
	}

	uri, err := firstVideoURI(op)
	if err != nil {
		return nil, err
	}

	data, mimeType, err := c.download(ctx, uri, key)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = resultMIME(op)
	}

	return &Generation{
		BlobID:    c.sink.Put(data, mimeType),
		MIMEType:  mimeType,
		Size:      int64(len(data)),
		SourceURI: uri,
	}, nil
}

// poll re-issues the status call with the last handle until the vendor
// reports done. A handle carrying an error payload fails immediately with
// no further polling.
func (c *Client) poll(ctx context.Context, key string, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	for {
		if len(op.Error) > 0 {
			return nil, operationError(op.Error)
		}
		if op.Done {
			return op, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		next, err := c.vendor.GetVideosOperation(ctx, key, op)
		if err != nil {
			return nil, classifyVendorErr(err)
		}
		op = next
	}
}

func firstVideoURI(op *genai.GenerateVideosOperation) (string, error) {
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return "", &MissingPayloadError{Message: "operation completed without generated videos"}
	}
	video := op.Response.GeneratedVideos[0].Video
	if video == nil || video.URI == "" {
		return "", &MissingPayloadError{Message: "generated video carries no download URI"}
	}
	return video.URI, nil
}

func resultMIME(op *genai.GenerateVideosOperation) string {
	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if v := op.Response.GeneratedVideos[0].Video; v != nil && v.MIMEType != "" {
			return v.MIMEType
		}
	}
	return "video/mp4"
}

// downloadURL appends the API key as a query parameter. A URI already
// carrying a key is left untouched.
func downloadURL(uri, apiKey string) string {
	if strings.Contains(uri, "key=") {
		return uri
	}

	separator := "?"
	if strings.Contains(uri, "?") {
		separator = "&"
	}
	return uri + separator + "key=" + apiKey
}

func (c *Client) download(ctx context.Context, uri, apiKey string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL(uri, apiKey), nil)
	if err != nil {
		return nil, "", &NetworkError{Message: "invalid download URL"}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, "", ctx.Err()
		}
		// url.Error embeds the full URL, which would leak the key into
		// logs and chat entries; keep only the cause.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, "", &NetworkError{Err: uerr.Err}
		}
		return nil, "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &NetworkError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &NetworkError{Err: err}
	}

	return data, resp.Header.Get("Content-Type"), nil
}
