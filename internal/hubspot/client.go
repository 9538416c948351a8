package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowpbx/callrouter/internal/phone"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public HubSpot API endpoint.
const DefaultBaseURL = "https://api.hubapi.com"

const (
	searchPath    = "/crm/v3/objects/contacts/search"
	ownerProperty = "hubspot_owner_id"

	// maxResponseSize bounds how much of a search response is read.
	maxResponseSize = 1 << 20
)

// ClientConfig configures a HubSpot API client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single HTTP exchange. Callers should also pass a
	// context deadline.
	Timeout time.Duration
	// Rate and Burst limit outgoing requests. A zero Rate disables limiting.
	Rate  rate.Limit
	Burst int
}

// Client queries the HubSpot CRM for contact owners.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a HubSpot client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := cfg.Rate
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With("subsystem", "hubspot"),
	}
}

// Configured returns true if the client has an API key.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// ResolveOwner searches for a contact whose phone or mobilephone equals
// number and returns its hubspot_owner_id. found is false when no contact
// matches or the matching contact has no owner. Any failure talking to
// HubSpot is returned as a *ResolutionError and is not retried.
func (c *Client) ResolveOwner(ctx context.Context, number phone.Number) (ownerID string, found bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", false, &ResolutionError{Op: "rate limit", Err: err}
	}

	body, err := json.Marshal(newOwnerSearch(number))
	if err != nil {
		return "", false, &ResolutionError{Op: "marshalling request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return "", false, &ResolutionError{Op: "creating request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, &ResolutionError{Op: "sending request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", false, &ResolutionError{Op: "reading response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		rerr := &ResolutionError{Op: "contact search", StatusCode: resp.StatusCode}
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			rerr.Message = apiErr.Message
		}
		return "", false, rerr
	}

	var sr searchResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", false, &ResolutionError{Op: "decoding response", StatusCode: resp.StatusCode, Err: err}
	}
	if sr.Results == nil {
		return "", false, &ResolutionError{Op: "decoding response", StatusCode: resp.StatusCode, Err: errMissingResults}
	}

	if len(*sr.Results) == 0 {
		c.logger.Debug("no contact found", "number", number)
		return "", false, nil
	}

	contact := (*sr.Results)[0]
	ownerID = contact.Properties[ownerProperty]
	if ownerID == "" {
		c.logger.Debug("contact has no owner", "number", number, "contact_id", contact.ID)
		return "", false, nil
	}

	c.logger.Debug("contact found", "number", number, "contact_id", contact.ID, "owner_id", ownerID)
	return ownerID, true, nil
}
