package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/metal-classifier/config"
	"github.com/nvr-ai/metal-classifier/fetch"
	"github.com/nvr-ai/metal-classifier/models/metal"
	"github.com/nvr-ai/metal-classifier/models/postprocess"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testPredictions = []postprocess.Prediction{
	{Class: "gold", Probability: 0.8123},
	{Class: "yellow_gold", Probability: 0.1},
	{Class: "rose_gold", Probability: 0.05},
}

// fakeClassifier records the bytes it was asked to classify.
type fakeClassifier struct {
	got   []byte
	err   error
	panic bool
}

func (f *fakeClassifier) ClassifyBytes(_ context.Context, data []byte) ([]postprocess.Prediction, error) {
	if f.panic {
		panic("classifier exploded")
	}
	f.got = data
	if f.err != nil {
		return nil, f.err
	}
	return testPredictions, nil
}

// fakeFetcher returns canned bytes or an error.
type fakeFetcher struct {
	data []byte
	err  error
	url  string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.url = rawURL
	return f.data, f.err
}

func newTestServer(t *testing.T, c Classifier, f Fetcher) *Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := config.Default().Server
	cfg.MaxUploadBytes = 4096

	s, err := New(Options{
		Config:    cfg,
		ModelName: "metal-mobilenetv3",
		Classes:   metal.Classes,
		Logger:    logger,
		Registry:  prometheus.NewRegistry(),
	}, c, f)
	require.NoError(t, err)
	return s
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

// TestPredictUpload classifies a multipart upload and returns the ranked classes.
func TestPredictUpload(t *testing.T) {
	classifier := &fakeClassifier{}
	s := newTestServer(t, classifier, &fakeFetcher{})

	body, contentType := multipartBody(t, "file", "ring.jpg", []byte("jpegbytes"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("jpegbytes"), classifier.got)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	assert.JSONEq(t, `{
		"success": true,
		"predictions": [
			{"class": "gold", "probability": 0.8123},
			{"class": "yellow_gold", "probability": 0.1},
			{"class": "rose_gold", "probability": 0.05}
		]
	}`, rec.Body.String())
}

// TestPredictRejections covers every 400 and 413 path of the predict endpoint.
func TestPredictRejections(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{}, &fakeFetcher{})

	t.Run("empty filename", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/predict", body)
		req.Header.Set("Content-Type", contentType)

		rec := do(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoSelectedFile, decodeError(t, rec))
	})

	t.Run("other field", func(t *testing.T) {
		body, contentType := multipartBody(t, "image", "ring.jpg", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/predict", body)
		req.Header.Set("Content-Type", contentType)

		rec := do(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoInput, decodeError(t, rec))
	})

	t.Run("no body", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodPost, "/predict", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoInput, decodeError(t, rec))
	})

	t.Run("json without url", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"link": "x"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := do(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoInput, decodeError(t, rec))
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"url":`))
		req.Header.Set("Content-Type", "application/json")

		rec := do(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgInvalidJSON, decodeError(t, rec))
	})

	t.Run("upload too large", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "big.jpg", bytes.Repeat([]byte("x"), 8192))
		req := httptest.NewRequest(http.MethodPost, "/predict", body)
		req.Header.Set("Content-Type", contentType)

		rec := do(s, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

// TestPredictURL downloads and classifies an image URL.
func TestPredictURL(t *testing.T) {
	classifier := &fakeClassifier{}
	fetcher := &fakeFetcher{data: []byte("pngbytes")}
	s := newTestServer(t, classifier, fetcher)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"url": " https://cdn.example/ring.png "}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cdn.example/ring.png", fetcher.url)
	assert.Equal(t, []byte("pngbytes"), classifier.got)
}

// TestPredictURLFailures maps fetch failures to their status codes.
func TestPredictURLFailures(t *testing.T) {
	cases := []struct {
		name    string
		fetcher Fetcher
		status  int
		message string
	}{
		{"invalid url", fetch.New(fetch.Options{}), http.StatusBadRequest, msgInvalidURL},
		{"too large", &fakeFetcher{err: fetch.ErrTooLarge}, http.StatusRequestEntityTooLarge, msgTooLarge},
		{"not found", &fakeFetcher{err: &fetch.StatusError{URL: "http://x/y", StatusCode: 404}}, http.StatusInternalServerError, "failed to fetch http://x/y: HTTP 404"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &fakeClassifier{}, tc.fetcher)
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"url": "ftp://nope"}`))
			req.Header.Set("Content-Type", "application/json")

			rec := do(s, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, decodeError(t, rec))
		})
	}
}

// TestPredictClassifierError returns the failure message with a 500.
func TestPredictClassifierError(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{err: errors.New("cannot identify image file")}, &fakeFetcher{})

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "cannot identify image file", decodeError(t, rec))
}

// TestPredictPanicRecovered keeps the server alive when a handler panics.
func TestPredictPanicRecovered(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s, err := New(Options{Config: config.Default().Server, Logger: logger}, &fakeClassifier{panic: true}, &fakeFetcher{})
	require.NoError(t, err)

	body, contentType := multipartBody(t, "file", "ring.jpg", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))

	var panicked bool
	for _, e := range hook.AllEntries() {
		if e.Message == "handler panicked" && e.Level == logrus.ErrorLevel {
			panicked = true
		}
	}
	assert.True(t, panicked)
}

// TestRequestIDPropagated echoes a caller supplied request ID.
func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{}, &fakeFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")

	rec := do(s, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

// TestInfoEndpoints covers health, classes and metrics.
func TestInfoEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{}, &fakeFetcher{})

	rec := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy", "model": "metal-mobilenetv3"}`, rec.Body.String())

	rec = do(s, httptest.NewRequest(http.MethodGet, "/classes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var classes classesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &classes))
	assert.Equal(t, metal.Classes, classes.Classes)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `metal_classifier_http_requests_total{code="200",method="GET",route="/health"} 1`)
}

// TestCORSPreflight allows any origin by default.
func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{}, &fakeFetcher{})

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := do(s, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// TestNewRequiresDependencies rejects missing collaborators.
func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{}, nil, &fakeFetcher{})
	assert.Error(t, err)
	_, err = New(Options{}, &fakeClassifier{}, nil)
	assert.Error(t, err)
}

// TestRunShutsDown stops serving when the context is canceled.
func TestRunShutsDown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.Default().Server
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.ShutdownTimeout = time.Second

	s, err := New(Options{Config: cfg, Logger: logger}, &fakeClassifier{}, &fakeFetcher{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
