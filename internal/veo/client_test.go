package veo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/genai"

	"veochat-backend/internal/blob"
)

type fakeKeys struct{ key string }

func (k fakeKeys) Key() (string, bool) { return k.key, k.key != "" }

type pollResult struct {
	op  *genai.GenerateVideosOperation
	err error
}

type fakeVendor struct {
	submitOp  *genai.GenerateVideosOperation
	submitErr error
	polls     []pollResult

	submitCalls int
	getCalls    int
	gotModel    string
	gotPrompt   string
	gotImage    *genai.Image
	gotConfig   *genai.GenerateVideosConfig
	gotKey      string
}

func (f *fakeVendor) GenerateVideos(ctx context.Context, apiKey, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.submitCalls++
	f.gotKey = apiKey
	f.gotModel = model
	f.gotPrompt = prompt
	f.gotImage = image
	f.gotConfig = config
	return f.submitOp, f.submitErr
}

func (f *fakeVendor) GetVideosOperation(ctx context.Context, apiKey string, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	if f.getCalls >= len(f.polls) {
		return nil, fmt.Errorf("unexpected status call %d", f.getCalls+1)
	}
	r := f.polls[f.getCalls]
	f.getCalls++
	return r.op, r.err
}

func pendingOp(name string) *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{Name: name}
}

func doneOp(uri string) *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{
		Name: "operations/test",
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{
				{Video: &genai.Video{URI: uri, MIMEType: "video/mp4"}},
			},
		},
	}
}

func newTestClient(vendor VendorClient, sink BlobSink) *Client {
	return NewClient(vendor, fakeKeys{key: "test-key"}, sink, Options{
		Model:        "veo-2.0-generate-001",
		PollInterval: time.Millisecond,
	})
}

func TestGenerateEndToEnd(t *testing.T) {
	payload := []byte("RIFF fake video payload")
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	}))
	defer server.Close()

	vendor := &fakeVendor{
		submitOp: pendingOp("operations/test"),
		polls: []pollResult{
			{op: pendingOp("operations/test")},
			{op: doneOp(server.URL + "/v1beta/files/abc:download?alt=media")},
		},
	}
	store := blob.NewStore()
	client := newTestClient(vendor, store)

	gen, err := client.Generate(context.Background(), GenerationRequest{
		Prompt: "a calm lake at sunset",
		Config: GenerationConfig{AspectRatio: "16:9", Resolution: "720p"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if vendor.submitCalls != 1 {
		t.Errorf("Expected 1 submit call, got %d", vendor.submitCalls)
	}
	if vendor.getCalls != 2 {
		t.Errorf("Expected 2 status calls, got %d", vendor.getCalls)
	}
	if vendor.gotPrompt != "a calm lake at sunset" {
		t.Errorf("Prompt not passed through, got %q", vendor.gotPrompt)
	}
	if vendor.gotConfig.AspectRatio != "16:9" || vendor.gotConfig.Resolution != "720p" {
		t.Errorf("Config not passed through, got %+v", vendor.gotConfig)
	}
	if vendor.gotConfig.NumberOfVideos != 1 {
		t.Errorf("Expected a single video requested, got %d", vendor.gotConfig.NumberOfVideos)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected key appended to download URL, got %q", gotKey)
	}

	b, ok := store.Get(gen.BlobID)
	if !ok {
		t.Fatal("Expected a dereferenceable blob handle")
	}
	if !bytes.Equal(b.Data, payload) {
		t.Error("Blob payload does not match download body")
	}
	if gen.MIMEType != "video/mp4" {
		t.Errorf("Expected video/mp4, got %q", gen.MIMEType)
	}
	if gen.Size != int64(len(payload)) {
		t.Errorf("Expected size %d, got %d", len(payload), gen.Size)
	}
}

func TestGenerateOmitsAbsentImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video"))
	}))
	defer server.Close()

	vendor := &fakeVendor{submitOp: doneOp(server.URL + "/video")}
	client := newTestClient(vendor, blob.NewStore())

	if _, err := client.Generate(context.Background(), GenerationRequest{Prompt: "no image here"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if vendor.gotImage != nil {
		t.Errorf("Expected nil image argument when request has no attachment, got %+v", vendor.gotImage)
	}
}

func TestGeneratePassesImageAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video"))
	}))
	defer server.Close()

	vendor := &fakeVendor{submitOp: doneOp(server.URL + "/video")}
	client := newTestClient(vendor, blob.NewStore())

	imageData := []byte{0x89, 'P', 'N', 'G'}
	_, err := client.Generate(context.Background(), GenerationRequest{
		Prompt: "animate this",
		Image:  &ImageAttachment{Data: imageData, MIMEType: "image/png"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if vendor.gotImage == nil {
		t.Fatal("Expected image argument to be set")
	}
	if !bytes.Equal(vendor.gotImage.ImageBytes, imageData) {
		t.Error("Image bytes not passed through")
	}
	if vendor.gotImage.MIMEType != "image/png" {
		t.Errorf("Expected image/png, got %q", vendor.gotImage.MIMEType)
	}
}

func TestGenerateFailsImmediatelyOnOperationError(t *testing.T) {
	tests := []struct {
		name         string
		vendor       *fakeVendor
		wantGetCalls int
	}{
		{
			name: "error on submit response",
			vendor: &fakeVendor{
				submitOp: &genai.GenerateVideosOperation{
					Name:  "operations/test",
					Error: map[string]any{"code": float64(13), "message": "internal failure"},
				},
			},
			wantGetCalls: 0,
		},
		{
			name: "error on first status response",
			vendor: &fakeVendor{
				submitOp: pendingOp("operations/test"),
				polls: []pollResult{
					{op: &genai.GenerateVideosOperation{
						Name:  "operations/test",
						Error: map[string]any{"code": float64(13), "message": "internal failure"},
					}},
					{op: doneOp("http://unreachable.invalid/video")},
				},
			},
			wantGetCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(tc.vendor, blob.NewStore())

			_, err := client.Generate(context.Background(), GenerationRequest{Prompt: "doomed"})

			var remoteErr *RemoteOperationError
			if !errors.As(err, &remoteErr) {
				t.Fatalf("Expected RemoteOperationError, got %v", err)
			}
			if remoteErr.Code != 13 {
				t.Errorf("Expected code 13, got %d", remoteErr.Code)
			}
			if tc.vendor.getCalls != tc.wantGetCalls {
				t.Errorf("Expected %d status calls, got %d", tc.wantGetCalls, tc.vendor.getCalls)
			}
		})
	}
}

func TestGenerateMissingPayload(t *testing.T) {
	tests := []struct {
		name string
		op   *genai.GenerateVideosOperation
	}{
		{
			name: "done without response",
			op:   &genai.GenerateVideosOperation{Name: "operations/test", Done: true},
		},
		{
			name: "empty result list",
			op: &genai.GenerateVideosOperation{
				Name:     "operations/test",
				Done:     true,
				Response: &genai.GenerateVideosResponse{},
			},
		},
		{
			name: "video without URI",
			op: &genai.GenerateVideosOperation{
				Name: "operations/test",
				Done: true,
				Response: &genai.GenerateVideosResponse{
					GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{}}},
				},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := blob.NewStore()
			client := newTestClient(&fakeVendor{submitOp: tc.op}, store)

			_, err := client.Generate(context.Background(), GenerationRequest{Prompt: "empty"})

			var payloadErr *MissingPayloadError
			if !errors.As(err, &payloadErr) {
				t.Fatalf("Expected MissingPayloadError, got %v", err)
			}
			if store.Len() != 0 {
				t.Error("Expected no blob handle for a missing payload")
			}
		})
	}
}

func TestGenerateDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	store := blob.NewStore()
	client := newTestClient(&fakeVendor{submitOp: doneOp(server.URL + "/video")}, store)

	_, err := client.Generate(context.Background(), GenerationRequest{Prompt: "flaky"})

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %v", err)
	}
	if netErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", netErr.StatusCode)
	}
	if store.Len() != 0 {
		t.Error("Expected no blob handle after a failed download")
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	vendor := &fakeVendor{}
	client := NewClient(vendor, fakeKeys{}, blob.NewStore(), Options{PollInterval: time.Millisecond})

	_, err := client.Generate(context.Background(), GenerationRequest{Prompt: "keyless"})

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if vendor.submitCalls != 0 {
		t.Error("Expected no vendor call without a key")
	}
}

func TestGenerateCancelledDuringWait(t *testing.T) {
	vendor := &fakeVendor{submitOp: pendingOp("operations/test")}
	client := NewClient(vendor, fakeKeys{key: "test-key"}, blob.NewStore(), Options{
		PollInterval: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.Generate(ctx, GenerationRequest{Prompt: "abort me"})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Cancellation took too long: %v", elapsed)
	}
	if vendor.getCalls != 0 {
		t.Errorf("Expected no status call after cancellation, got %d", vendor.getCalls)
	}
}

func TestDownloadURL(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "no query string",
			uri:      "https://example.com/v1beta/files/abc",
			expected: "https://example.com/v1beta/files/abc?key=secret",
		},
		{
			name:     "existing query string",
			uri:      "https://example.com/v1beta/files/abc:download?alt=media",
			expected: "https://example.com/v1beta/files/abc:download?alt=media&key=secret",
		},
		{
			name:     "key already present",
			uri:      "https://example.com/video?key=other",
			expected: "https://example.com/video?key=other",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := downloadURL(tc.uri, "secret"); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestClassifyVendorErr(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"structured 401", genai.APIError{Code: 401, Message: "unauthorized"}, KindAuth},
		{"structured 403", genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, KindAuth},
		{"structured bad key", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."}, KindAuth},
		{"structured server error", genai.APIError{Code: 500, Message: "internal"}, KindRemote},
		{"pattern shim entity", errors.New("rpc error: Requested entity was not found."), KindAuth},
		{"pattern shim key", errors.New("400 API key not valid"), KindAuth},
		{"bare transport error", errors.New("dial tcp: connection refused"), KindNetwork},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(classifyVendorErr(tc.err)); got != tc.wantKind {
				t.Errorf("Expected kind %q, got %q", tc.wantKind, got)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"auth", &AuthError{Message: "bad key"}, KindAuth},
		{"remote", &RemoteOperationError{Code: 13, Message: "boom"}, KindRemote},
		{"network", &NetworkError{StatusCode: 502}, KindNetwork},
		{"missing payload", &MissingPayloadError{Message: "empty"}, KindMissingPayload},
		{"cancelled", context.Canceled, KindCancelled},
		{"timeout", context.DeadlineExceeded, KindTimeout},
		{"unknown defaults to remote", errors.New("mystery"), KindRemote},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.expected {
				t.Errorf("Expected kind %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestOperationErrorUpgradesCredentialMessage(t *testing.T) {
	err := operationError(map[string]any{
		"code":    float64(5),
		"message": "Requested entity was not found.",
	})

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError for credential pattern, got %v", err)
	}
}
