package mapillary

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"mapfetch/pkg/config"
	errs "mapfetch/pkg/errors"
	"mapfetch/pkg/logger"
	"mapfetch/pkg/ratelimit"
	"mapfetch/pkg/retry"
)

// Client is the sole network boundary of the fetch engine. It issues GET
// requests against the Mapillary Graph API with bounded retries and
// separate connect and read timeouts.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	retryCfg    *retry.Config
	limiter     ratelimit.Limiter
	logger      logger.Logger
}

// NewClient creates a new Mapillary Graph API client. The limiter may be
// nil, in which case requests are not paced.
func NewClient(cfg config.MapillaryConfig, rl config.RateLimitConfig, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	maxAttempts := rl.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	baseDelay := rl.RetryDelay
	if baseDelay <= 0 {
		baseDelay = 1 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: requestTimeout,
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = maxAttempts
	retryCfg.Backoff = &retry.ExponentialBackoff{
		BaseDelay:    baseDelay,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
	retryCfg.Logger = log

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		retryCfg:    retryCfg,
		limiter:     limiter,
		logger:      log,
	}
}

// doRequest performs a single HTTP GET against the given URL
func (c *Client) doRequest(url string) (*http.Response, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.Redacted(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.Redacted(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.Redacted(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus classifies the HTTP response status into typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "authentication failed",
			Code:    resp.StatusCode,
		}
	case http.StatusNotFound:
		return &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	case http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		logger.LogRateLimit(resp.Request.URL.Path, retryAfter)
		return &errs.Error{
			Type:    errs.ErrorTypeRateLimit,
			Message: "rate limit exceeded",
			Code:    resp.StatusCode,
		}
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &errs.Error{
			Type:    errs.ErrorTypeServerError,
			Message: "server error",
			Code:    resp.StatusCode,
		}
	default:
		if errs.IsRetryableStatusCode(resp.StatusCode) {
			return &errs.Error{
				Type:    errs.ErrorTypeServerError,
				Message: fmt.Sprintf("server returned status %d", resp.StatusCode),
				Code:    resp.StatusCode,
			}
		}
		if resp.StatusCode >= 400 {
			return &errs.Error{
				Type:    errs.ErrorTypeUnknown,
				Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
				Code:    resp.StatusCode,
			}
		}
		return nil
	}
}

// getJSON performs a GET with retries and decodes the JSON response
func (c *Client) getJSON(url string, target interface{}) error {
	return retry.Do(func() error {
		resp, err := c.doRequest(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &errs.Error{
				Type:    errs.ErrorTypeNetwork,
				Message: fmt.Sprintf("failed to read response body: %v", err),
				Code:    resp.StatusCode,
			}
		}

		if err := json.Unmarshal(body, target); err != nil {
			bodyPreview := string(body)
			if len(bodyPreview) > 200 {
				bodyPreview = bodyPreview[:200] + "..."
			}
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": bodyPreview,
			})
			return &errs.Error{
				Type:    errs.ErrorTypeParsing,
				Message: fmt.Sprintf("failed to parse JSON: %v", err),
				Code:    resp.StatusCode,
			}
		}

		return nil
	}, c.retryCfg)
}

// ListImages lists candidate images within a bounding box using the given
// field selector and limit.
func (c *Client) ListImages(bbox BoundingBox, fields string, limit int) ([]Candidate, error) {
	url := ListImagesURL(c.baseURL, c.accessToken, bbox, fields, limit)

	c.logger.DebugWithFields("listing images in bounding box", map[string]interface{}{
		"bbox":  bbox.String(),
		"limit": limit,
	})

	var response ImagesResponse
	if err := c.getJSON(url, &response); err != nil {
		return nil, err
	}

	return response.Data, nil
}

// ResolveThumbnailURL resolves the download URL for an image, preferring
// the high-resolution thumbnail and falling back to the lower resolution.
// An empty string with a nil error means the image exposes neither field;
// the caller is expected to skip the item.
func (c *Client) ResolveThumbnailURL(imageID string) (string, error) {
	url := ImageFieldsURL(c.baseURL, c.accessToken, imageID, ThumbnailFields)

	var response thumbnailResponse
	if err := c.getJSON(url, &response); err != nil {
		return "", err
	}

	if response.Thumb2048URL != "" {
		return response.Thumb2048URL, nil
	}
	if response.Thumb1024URL != "" {
		return response.Thumb1024URL, nil
	}

	c.logger.DebugWithFields("image has no thumbnail URL", map[string]interface{}{
		"image_id": imageID,
	})
	return "", nil
}

// FetchBytes opens a byte stream from a resolved URL. The caller owns the
// returned body and must close it. Retries cover establishing the
// response; a failure while consuming the stream surfaces to the caller.
func (c *Client) FetchBytes(url string) (io.ReadCloser, error) {
	return retry.DoWithResult(func() (io.ReadCloser, error) {
		resp, err := c.doRequest(url)
		if err != nil {
			return nil, err
		}

		if err := c.checkResponseStatus(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}

		return resp.Body, nil
	}, c.retryCfg)
}
