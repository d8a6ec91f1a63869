package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.opencagedata.com/geocode/v1"
	responseBodyReadLimit int64 = 1024
)

var errAPIKeyRequired = errors.New("geocoding api key is required")

// LatLng is the coordinate pair returned by the geocoding API.
type LatLng struct {
	Lat float64
	Lng float64
}

// Client wraps the OpenCage forward-geocoding API used to resolve delivery
// addresses. Lookups are bounded by the HTTP client timeout so a slow
// upstream can never stall checkout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	country    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured geocoding base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCountryCode restricts lookups to the given ISO country code.
func WithCountryCode(code string) Option {
	return func(c *Client) {
		c.country = strings.ToLower(strings.TrimSpace(code))
	}
}

// NewClient builds the geocoding client given an API key.
func NewClient(apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		country:    "in",
		httpClient: &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Resolve geocodes the address line to coordinates. Transport failures are
// retried once before surfacing a dependency error.
func (c *Client) Resolve(ctx context.Context, address string) (LatLng, error) {
	if c == nil {
		return LatLng{}, pkgerrors.New(pkgerrors.CodeDependency, "geocoding client not configured")
	}
	if strings.TrimSpace(address) == "" {
		return LatLng{}, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	var result LatLng
	backoff := retry.WithMaxRetries(1, retry.NewConstant(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		coords, lookupErr := c.lookup(ctx, address)
		if lookupErr != nil {
			return lookupErr
		}
		result = coords
		return nil
	})
	if err != nil {
		return LatLng{}, err
	}
	return result, nil
}

func (c *Client) lookup(ctx context.Context, address string) (LatLng, error) {
	query := url.Values{}
	query.Set("q", address)
	query.Set("key", c.apiKey)
	query.Set("limit", "1")
	if c.country != "" {
		query.Set("countrycode", c.country)
	}

	endpoint := fmt.Sprintf("%s/json?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LatLng{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build geocode request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return LatLng{}, retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute geocode request"))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return LatLng{}, retry.RetryableError(pkgerrors.Wrap(
			pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"geocode request failed",
		))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return LatLng{}, pkgerrors.Wrap(
			pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"geocode request rejected",
		)
	}

	var apiResp struct {
		Results []struct {
			Geometry struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return LatLng{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode geocode response")
	}
	if len(apiResp.Results) == 0 {
		return LatLng{}, pkgerrors.New(pkgerrors.CodeDependency, "no geocode results for address")
	}

	return LatLng{
		Lat: apiResp.Results[0].Geometry.Lat,
		Lng: apiResp.Results[0].Geometry.Lng,
	}, nil
}
