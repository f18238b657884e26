// Package upload forwards multipart receipt uploads to the file-hosting
// provider and exposes its non-secret client configuration.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/hr-gateway/pkg/logging"
)

// MaxUploadSize bounds the inbound multipart body.
const MaxUploadSize = 10 << 20

// Form field names understood by the provider.
const (
	FieldFile         = "file"
	FieldUploadPreset = "upload_preset"
	FieldFolder       = "folder"
)

var uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hr_gateway_uploads_total",
	Help: "Total upload attempts by outcome",
}, []string{"outcome"})

// Config holds provider configuration.
type Config struct {
	CloudName    string
	UploadPreset string
	Folder       string

	// APIURL is the provider API root; the cloud name is appended to it.
	APIURL string

	Timeout time.Duration
}

// PublicConfig is the body of GET /api/cloudinary/config.
type PublicConfig struct {
	CloudName    string `json:"cloudName"`
	UploadPreset string `json:"uploadPreset"`
	Folder       string `json:"folder"`
	APIBase      string `json:"apiBase"`
}

// Result is the normalized subset of the provider's upload response.
type Result struct {
	URL              string `json:"url"`
	SecureURL        string `json:"secureUrl"`
	PublicID         string `json:"publicId"`
	Format           string `json:"format"`
	ResourceType     string `json:"resourceType"`
	Bytes            int64  `json:"bytes"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	CreatedAt        string `json:"createdAt"`
	OriginalFilename string `json:"originalFilename"`
}

// providerResponse mirrors the provider's snake_case JSON.
type providerResponse struct {
	URL              string `json:"url"`
	SecureURL        string `json:"secure_url"`
	PublicID         string `json:"public_id"`
	Format           string `json:"format"`
	ResourceType     string `json:"resource_type"`
	Bytes            int64  `json:"bytes"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	CreatedAt        string `json:"created_at"`
	OriginalFilename string `json:"original_filename"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("upload provider error (status %d): %s", e.StatusCode, e.Message)
}

// ErrMissingFile is returned when the form carries no file part or file field.
var ErrMissingFile = errors.New("missing file field")

// Uploader relays uploads to the provider.
type Uploader struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates an uploader.
func New(cfg Config) *Uploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &Uploader{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logging.NewLogger("upload"),
	}
}

// APIBase is the provider endpoint root for the configured cloud.
func (u *Uploader) APIBase() string {
	return u.config.APIURL + "/" + u.config.CloudName
}

// PublicConfig returns the configuration safe to hand to browsers.
func (u *Uploader) PublicConfig() PublicConfig {
	return PublicConfig{
		CloudName:    u.config.CloudName,
		UploadPreset: u.config.UploadPreset,
		Folder:       u.config.Folder,
		APIBase:      u.APIBase(),
	}
}

// ConfigHandler serves GET /api/cloudinary/config.
func (u *Uploader) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, u.PublicConfig())
}

// UploadHandler serves POST /api/cloudinary/upload.
func (u *Uploader) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		uploadsTotal.WithLabelValues("invalid").Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", MaxUploadSize))
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	result, err := u.Upload(r.Context(), r.MultipartForm)
	if err != nil {
		var providerErr *ProviderError
		switch {
		case errors.Is(err, ErrMissingFile):
			uploadsTotal.WithLabelValues("invalid").Inc()
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.As(err, &providerErr):
			uploadsTotal.WithLabelValues("provider_error").Inc()
			writeError(w, r, providerErr.StatusCode, providerErr.Message)
		default:
			uploadsTotal.WithLabelValues("error").Inc()
			u.logger.Error().Err(err).Msg("Upload failed")
			writeError(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}

	uploadsTotal.WithLabelValues("success").Inc()
	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// Upload re-encodes form, injects the preset and folder when absent and posts
// it to {APIBase}/auto/upload.
func (u *Uploader) Upload(ctx context.Context, form *multipart.Form) (*Result, error) {
	if len(form.File[FieldFile]) == 0 && len(form.Value[FieldFile]) == 0 {
		return nil, ErrMissingFile
	}

	body, contentType, err := u.encode(form)
	if err != nil {
		return nil, err
	}

	endpoint := u.APIBase() + "/auto/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	var parsed providerResponse
	decodeErr := json.Unmarshal(data, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		u.logger.Warn().
			Int("status", resp.StatusCode).
			Str("message", message).
			Msg("Upload rejected by provider")
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode upload response: %w", decodeErr)
	}

	u.logger.Info().
		Str("public_id", parsed.PublicID).
		Int64("bytes", parsed.Bytes).
		Dur("duration", time.Since(start)).
		Msg("Upload stored")

	return &Result{
		URL:              parsed.URL,
		SecureURL:        parsed.SecureURL,
		PublicID:         parsed.PublicID,
		Format:           parsed.Format,
		ResourceType:     parsed.ResourceType,
		Bytes:            parsed.Bytes,
		Width:            parsed.Width,
		Height:           parsed.Height,
		CreatedAt:        parsed.CreatedAt,
		OriginalFilename: parsed.OriginalFilename,
	}, nil
}

// encode writes form values in name order, then the injected defaults, then files.
func (u *Uploader) encode(form *multipart.Form) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	names := make([]string, 0, len(form.Value))
	for name := range form.Value {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range form.Value[name] {
			if err := mw.WriteField(name, value); err != nil {
				return nil, "", fmt.Errorf("write field %s: %w", name, err)
			}
		}
	}

	defaults := []struct{ name, value string }{
		{FieldUploadPreset, u.config.UploadPreset},
		{FieldFolder, u.config.Folder},
	}
	for _, d := range defaults {
		if _, present := form.Value[d.name]; present || d.value == "" {
			continue
		}
		if err := mw.WriteField(d.name, d.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", d.name, err)
		}
	}

	fileNames := make([]string, 0, len(form.File))
	for name := range form.File {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	for _, name := range fileNames {
		for _, fh := range form.File[name] {
			if err := copyFile(mw, fh); err != nil {
				return nil, "", fmt.Errorf("copy file %s: %w", fh.Filename, err)
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

func copyFile(mw *multipart.Writer, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	part, err := mw.CreatePart(fh.Header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}
