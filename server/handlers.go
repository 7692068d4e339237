package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/nvr-ai/metal-classifier/fetch"
	"github.com/nvr-ai/metal-classifier/models/postprocess"
)

const (
	msgNoSelectedFile = "No selected file"
	msgNoInput        = "No file or URL provided"
	msgInvalidURL     = "Invalid URL"
	msgInvalidJSON    = "Invalid JSON body"
	msgInvalidForm    = "Invalid multipart form"
	msgTooLarge       = "Image exceeds the upload limit"

	// multipartMemory is the part of a multipart body kept in memory; the rest spills to disk.
	multipartMemory = 8 << 20
)

type predictRequest struct {
	URL string `json:"url"`
}

type predictResponse struct {
	Success     bool                     `json:"success"`
	Predictions []postprocess.Prediction `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

type classesResponse struct {
	Classes []string `json:"classes"`
}

// httpError carries the status and client message for a rejected request.
type httpError struct {
	status  int
	message string
	cause   error
}

func (e *httpError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func reject(status int, message string, cause error) *httpError {
	return &httpError{status: status, message: message, cause: cause}
}

// predict classifies an uploaded file or an image URL.
func (s *Server) predict(c *gin.Context) {
	if limit := s.opts.Config.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	data, herr := s.readImage(c)
	if herr != nil {
		if herr.status >= http.StatusInternalServerError {
			s.requestLogger(c).WithError(herr).Error("failed to read image")
		}
		c.JSON(herr.status, errorResponse{Error: herr.message})
		return
	}

	predictions, err := s.classifier.ClassifyBytes(c.Request.Context(), data)
	if err != nil {
		s.requestLogger(c).WithError(err).Error("classification failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, predictResponse{Success: true, Predictions: predictions})
}

// readImage returns the encoded image from a multipart upload or a JSON URL body.
func (s *Server) readImage(c *gin.Context) ([]byte, *httpError) {
	switch c.ContentType() {
	case gin.MIMEMultipartPOSTForm:
		return s.readUpload(c)
	case gin.MIMEJSON:
		return s.readURL(c)
	default:
		return nil, reject(http.StatusBadRequest, msgNoInput, nil)
	}
}

func (s *Server) readUpload(c *gin.Context) ([]byte, *httpError) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return nil, reject(http.StatusRequestEntityTooLarge, msgTooLarge, err)
		}
		return nil, reject(http.StatusBadRequest, msgInvalidForm, err)
	}

	form := c.Request.MultipartForm
	if headers := form.File["file"]; len(headers) > 0 {
		if headers[0].Filename == "" {
			return nil, reject(http.StatusBadRequest, msgNoSelectedFile, nil)
		}
		data, err := readFileHeader(headers[0])
		if err != nil {
			return nil, reject(http.StatusInternalServerError, err.Error(), err)
		}
		return data, nil
	}

	// A file input submitted with nothing chosen arrives as a part with an empty filename,
	// which the multipart reader stores as a plain value.
	if _, ok := form.Value["file"]; ok {
		return nil, reject(http.StatusBadRequest, msgNoSelectedFile, nil)
	}

	return nil, reject(http.StatusBadRequest, msgNoInput, nil)
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	return data, nil
}

func (s *Server) readURL(c *gin.Context) ([]byte, *httpError) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		switch {
		case isTooLarge(err):
			return nil, reject(http.StatusRequestEntityTooLarge, msgTooLarge, err)
		case errors.Is(err, io.EOF):
			return nil, reject(http.StatusBadRequest, msgNoInput, nil)
		default:
			return nil, reject(http.StatusBadRequest, msgInvalidJSON, err)
		}
	}

	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, reject(http.StatusBadRequest, msgNoInput, nil)
	}

	data, err := s.fetcher.Fetch(c.Request.Context(), rawURL)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fetch.ErrInvalidURL):
		return nil, reject(http.StatusBadRequest, msgInvalidURL, err)
	case errors.Is(err, fetch.ErrTooLarge):
		return nil, reject(http.StatusRequestEntityTooLarge, msgTooLarge, err)
	default:
		return nil, reject(http.StatusInternalServerError, err.Error(), err)
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// health reports liveness and the loaded model.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Model: s.opts.ModelName})
}

// classes lists the labels in model output order.
func (s *Server) classes(c *gin.Context) {
	c.JSON(http.StatusOK, classesResponse{Classes: s.opts.Classes})
}
