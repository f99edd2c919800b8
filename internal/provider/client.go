package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/terralens/forestmap/internal/resilience"
)

// Scene summarizes the best available scene for a region and date range.
type Scene struct {
	Count           int     `json:"count"`
	CloudCover      float64 `json:"cloud_cover"`
	AcquisitionDate string  `json:"acquisition_date"`
}

// Histogram maps numeric class codes to pixel counts. Counts are floats
// because the provider computes them from weighted reductions.
type Histogram map[int]float64

// Client is the remote classification/imagery service. Implementations
// must be safe for concurrent use: tile fetch workers share one client.
type Client interface {
	// SearchScenes returns the scene availability summary for a region and
	// date range. A Count of zero means no imagery exists for the range.
	SearchScenes(ctx context.Context, region Geometry, startDate, endDate string) (*Scene, error)

	// ProtectedMask returns an opaque reference to the protected-area mask
	// for a region and YYYYMM month, falling back to the current-month
	// snapshot when the requested one is unavailable.
	ProtectedMask(ctx context.Context, region Geometry, month string) (string, error)

	// CreateClassification asks the provider to build the enhanced per-pixel
	// classification (base land cover plus natural-forest reclassification
	// under the protected mask) and returns its opaque raster reference.
	CreateClassification(ctx context.Context, region Geometry, startDate, endDate, maskRef string) (string, error)

	// RenderURL requests a rendered RGB raster of the classification over a
	// sub-region at the given ground-sample distance, and returns a
	// transient download URL.
	RenderURL(ctx context.Context, rasterRef string, region Geometry, scale int, palette map[int][3]uint8) (string, error)

	// Histogram reduces the classification over a region to per-class pixel
	// counts at the given ground-sample distance.
	Histogram(ctx context.Context, rasterRef string, region Geometry, scale int) (Histogram, error)
}

// Config configures the REST client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RatePerSec float64
	RateBurst  int

	// MaskCacheSize bounds the protected-mask memo cache. Mask snapshots
	// are immutable per (region, month), so entries never expire.
	MaskCacheSize int
}

// Service is the REST implementation of Client.
type Service struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	masks      *memoCache[string]
}

// New creates a REST classification-service client.
func New(cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}

	maskCache := cfg.MaskCacheSize
	if maskCache <= 0 {
		maskCache = 32
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("provider", "api_call")

	return &Service{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
		retry:      retry,
		masks:      newMemoCache[string](maskCache),
	}
}

// SearchScenes implements Client.
func (s *Service) SearchScenes(ctx context.Context, region Geometry, startDate, endDate string) (*Scene, error) {
	body := map[string]any{
		"geometry":   region,
		"start_date": startDate,
		"end_date":   endDate,
	}
	var scene Scene
	if err := s.post(ctx, "/v1/scenes/search", body, &scene); err != nil {
		return nil, err
	}
	zap.L().Debug("scene search complete",
		zap.Int("count", scene.Count),
		zap.Float64("cloud_cover", scene.CloudCover),
		zap.String("acquisition_date", scene.AcquisitionDate),
	)
	return &scene, nil
}

// ProtectedMask implements Client. Resolved references are memoized per
// (region, month); a 404 for a month snapshot falls back to the provider's
// current snapshot.
func (s *Service) ProtectedMask(ctx context.Context, region Geometry, month string) (string, error) {
	key := month + "|" + string(region)
	if ref, ok := s.masks.get(key); ok {
		return ref, nil
	}

	ref, err := s.protectedMask(ctx, region, month)
	if err != nil {
		if !isNotFound(err) {
			return "", err
		}
		zap.L().Info("protected-area snapshot unavailable, falling back to current",
			zap.String("month", month))
		ref, err = s.protectedMask(ctx, region, "current")
		if err != nil {
			return "", err
		}
	}

	s.masks.put(key, ref)
	return ref, nil
}

func (s *Service) protectedMask(ctx context.Context, region Geometry, month string) (string, error) {
	body := map[string]any{
		"geometry": region,
		"month":    month,
	}
	var out struct {
		MaskID string `json:"mask_id"`
	}
	if err := s.post(ctx, "/v1/masks/protected", body, &out); err != nil {
		return "", err
	}
	return out.MaskID, nil
}

// CreateClassification implements Client.
func (s *Service) CreateClassification(ctx context.Context, region Geometry, startDate, endDate, maskRef string) (string, error) {
	body := map[string]any{
		"geometry":   region,
		"start_date": startDate,
		"end_date":   endDate,
		"mask_id":    maskRef,
	}
	var out struct {
		RasterID string `json:"raster_id"`
	}
	if err := s.post(ctx, "/v1/classifications", body, &out); err != nil {
		return "", err
	}
	if out.RasterID == "" {
		return "", eris.New("provider: classification response missing raster_id")
	}
	return out.RasterID, nil
}

// RenderURL implements Client.
func (s *Service) RenderURL(ctx context.Context, rasterRef string, region Geometry, scale int, palette map[int][3]uint8) (string, error) {
	// JSON object keys must be strings.
	pal := make(map[string][3]uint8, len(palette))
	for code, rgb := range palette {
		pal[strconv.Itoa(code)] = rgb
	}
	body := map[string]any{
		"region":  region,
		"scale":   scale,
		"format":  "png",
		"palette": pal,
	}
	var out struct {
		DownloadURL string `json:"download_url"`
	}
	path := fmt.Sprintf("/v1/classifications/%s/render", rasterRef)
	if err := s.post(ctx, path, body, &out); err != nil {
		return "", err
	}
	if out.DownloadURL == "" {
		return "", eris.New("provider: render response missing download_url")
	}
	return out.DownloadURL, nil
}

// Histogram implements Client.
func (s *Service) Histogram(ctx context.Context, rasterRef string, region Geometry, scale int) (Histogram, error) {
	body := map[string]any{
		"region": region,
		"scale":  scale,
	}
	var out struct {
		Counts map[string]float64 `json:"counts"`
	}
	path := fmt.Sprintf("/v1/classifications/%s/histogram", rasterRef)
	if err := s.post(ctx, path, body, &out); err != nil {
		return nil, err
	}

	hist := make(Histogram, len(out.Counts))
	for key, count := range out.Counts {
		code, err := strconv.Atoi(key)
		if err != nil {
			return nil, eris.Wrapf(err, "provider: non-numeric histogram class %q", key)
		}
		hist[code] = count
	}
	return hist, nil
}

// post sends a JSON request and decodes a JSON response, with rate limiting
// and retry on transient failures.
func (s *Service) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrapf(err, "provider: marshal %s request", path)
	}

	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "provider: rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrapf(err, "provider: build %s request", path)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return eris.Wrapf(err, "provider: %s request", path)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := eris.Errorf("provider: %s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(data))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return &statusError{err: err, status: resp.StatusCode}
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrapf(err, "provider: read %s response", path)
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrapf(err, "provider: decode %s response", path)
		}
		return nil
	})
}

// statusError carries a non-transient HTTP status through the error chain.
type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func isNotFound(err error) bool {
	var se *statusError
	return eris.As(err, &se) && se.status == http.StatusNotFound
}
