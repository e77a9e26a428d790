package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/stagelink/rentops/pkg/httpclient"
)

// UnknownClientName is the placeholder used when the CRM cannot be reached.
const UnknownClientName = "Unknown client"

// ClientDirectory resolves client IDs to display names. Availability results
// embed client names in conflict rows, so lookups must degrade gracefully
// when the CRM is down.
type ClientDirectory interface {
	ClientName(ctx context.Context, companyID, clientID string) string
}

// CRMDirectory resolves client names against the legacy CRM's HTTP API,
// protected by a circuit breaker and a short-lived local cache.
type CRMDirectory struct {
	baseURL string
	client  *httpclient.CircuitBreakerClient
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedName
	ttl   time.Duration
}

type cachedName struct {
	name    string
	expires time.Time
}

type clientResponse struct {
	Data struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// NewCRMDirectory creates a CRM-backed client directory.
func NewCRMDirectory(baseURL string, client *httpclient.CircuitBreakerClient, cacheTTL time.Duration, logger *slog.Logger) *CRMDirectory {
	return &CRMDirectory{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
		cache:   make(map[string]cachedName),
		ttl:     cacheTTL,
	}
}

// ClientName returns the display name for a client, or UnknownClientName when
// the CRM is unreachable or returns an error. Results are cached briefly to
// keep availability checks from hammering the CRM.
func (d *CRMDirectory) ClientName(ctx context.Context, companyID, clientID string) string {
	if clientID == "" {
		return UnknownClientName
	}

	cacheKey := companyID + ":" + clientID

	d.mu.RLock()
	entry, ok := d.cache[cacheKey]
	d.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.name
	}

	name, err := d.fetch(ctx, companyID, clientID)
	if err != nil {
		d.logger.WarnContext(ctx, "client name lookup failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return UnknownClientName
	}

	d.mu.Lock()
	d.cache[cacheKey] = cachedName{name: name, expires: time.Now().Add(d.ttl)}
	d.mu.Unlock()

	return name
}

func (d *CRMDirectory) fetch(ctx context.Context, companyID, clientID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/clients/%s", d.baseURL, url.PathEscape(clientID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create client request: %w", err)
	}
	req.Header.Set("X-Company-ID", companyID)

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ParseResponseError(resp, "crm")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read client response: %w", err)
	}

	var parsed clientResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode client response: %w", err)
	}
	if parsed.Data.Name == "" {
		return "", fmt.Errorf("crm returned empty client name for %s", clientID)
	}

	return parsed.Data.Name, nil
}

// StaticDirectory returns a fixed name for every client. Used in tests and
// when no CRM endpoint is configured.
type StaticDirectory struct {
	Name string
}

// ClientName implements ClientDirectory.
func (d StaticDirectory) ClientName(_ context.Context, _, _ string) string {
	if d.Name == "" {
		return UnknownClientName
	}
	return d.Name
}
