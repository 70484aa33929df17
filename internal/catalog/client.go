package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nholik/stack-updater/internal/httpx"
	"github.com/rs/zerolog"
)

// ErrNoRefreshToken is returned by calls that need the IAM refresh token when
// the exchange did not issue one.
var ErrNoRefreshToken = errors.New("iam token has no refresh_token")

// DefaultCatalogURL is the public Catalog Management API base.
const DefaultCatalogURL = "https://cm.globalcatalog.cloud.ibm.com/api/v1-beta"

const refreshTokenHeader = "X-Auth-Refresh-Token"

// Client is the subset of the Catalog Management API used for update resolution.
type Client interface {
	// FetchVersion resolves a version locator. found is false when the
	// catalog does not know the locator; err is reserved for lookup failures.
	FetchVersion(ctx context.Context, locator string) (offering Offering, found bool, err error)

	// FetchUpdates lists update candidates for an offering and kind, keeping
	// only those whose flavor name matches flavor.
	FetchUpdates(ctx context.Context, offeringID, catalogID, kind, flavor string) ([]VersionUpdate, error)
}

// HTTPClient implements Client against the Catalog Management REST API.
type HTTPClient struct {
	logger    zerolog.Logger
	baseURL   *url.URL
	tokens    TokenProvider
	transport *httpx.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a catalog client rooted at catalogURL.
func NewHTTPClient(logger zerolog.Logger, catalogURL string, tokens TokenProvider, opts ...Option) (*HTTPClient, error) {
	if strings.TrimSpace(catalogURL) == "" {
		catalogURL = DefaultCatalogURL
	}
	if tokens == nil {
		return nil, errors.New("token provider must not be nil")
	}
	base, err := url.Parse(strings.TrimRight(catalogURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("invalid catalog url: must include scheme and host")
	}

	o := buildOptions(opts)
	return &HTTPClient{
		logger:    logger,
		baseURL:   base,
		tokens:    tokens,
		transport: httpx.New(logger, userAgent, o.timing),
	}, nil
}

// FetchVersion implements Client.
func (c *HTTPClient) FetchVersion(ctx context.Context, locator string) (Offering, bool, error) {
	const op = "get version"

	target := c.baseURL.JoinPath("versions", locator)
	resp, err := c.get(ctx, target, false)
	if err != nil {
		return Offering{}, false, wrapLookup(op, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug().Str("version_locator", locator).Msg("version not found")
		return Offering{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Offering{}, false, wrapLookup(op, httpx.NewStatusError(resp))
	}

	var offering Offering
	if err := json.Unmarshal(resp.Body, &offering); err != nil {
		return Offering{}, false, wrapLookup(op, fmt.Errorf("decode version: %w", err))
	}

	c.logger.Debug().
		Str("version_locator", locator).
		Str("offering_id", offering.ID).
		Int("kinds", len(offering.Kinds)).
		Msg("fetched version")

	return offering, true, nil
}

// FetchUpdates implements Client.
func (c *HTTPClient) FetchUpdates(ctx context.Context, offeringID, catalogID, kind, flavor string) ([]VersionUpdate, error) {
	const op = "get offering updates"

	target := c.baseURL.JoinPath("catalogs", catalogID, "offerings", offeringID, "updates")
	query := target.Query()
	query.Set("kind", kind)
	target.RawQuery = query.Encode()

	resp, err := c.get(ctx, target, true)
	if err != nil {
		return nil, wrapLookup(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, wrapLookup(op, httpx.NewStatusError(resp))
	}

	var updates []VersionUpdate
	if err := json.Unmarshal(resp.Body, &updates); err != nil {
		return nil, wrapLookup(op, fmt.Errorf("decode updates: %w", err))
	}

	filtered := FilterByFlavor(updates, flavor)
	c.logger.Debug().
		Str("offering_id", offeringID).
		Str("kind", kind).
		Str("flavor", flavor).
		Int("updates", len(updates)).
		Int("matching_flavor", len(filtered)).
		Msg("fetched offering updates")

	return filtered, nil
}

// FilterByFlavor keeps candidates whose flavor name equals flavor. Candidates
// without a flavor never match.
func FilterByFlavor(updates []VersionUpdate, flavor string) []VersionUpdate {
	filtered := make([]VersionUpdate, 0, len(updates))
	for _, update := range updates {
		if update.Flavor == nil || update.Flavor.Name != flavor {
			continue
		}
		filtered = append(filtered, update)
	}
	return filtered
}

func (c *HTTPClient) get(ctx context.Context, target *url.URL, withRefresh bool) (*httpx.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if withRefresh && token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	return c.transport.Do(ctx, target, func(ctx context.Context) (*retryablehttp.Request, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		if withRefresh {
			req.Header.Set(refreshTokenHeader, token.RefreshToken)
		}
		return req, nil
	})
}
