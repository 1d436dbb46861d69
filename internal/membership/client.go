package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPClient talks to the commerce platform's REST API. It implements
// Directory and Catalog.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a platform API client.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform API %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status implements Directory.
func (c *HTTPClient) Status(ctx context.Context, userID string) (Status, error) {
	var out struct {
		Active       bool     `json:"active"`
		MembershipID string   `json:"membership_id"`
		PlanIDs      []string `json:"plan_ids"`
	}
	path := "/users/" + url.PathEscape(userID) + "/membership"
	if err := c.get(ctx, path, &out); err != nil {
		return Status{}, err
	}
	return Status{
		IsMember:     out.Active,
		MembershipID: out.MembershipID,
		PlanIDs:      out.PlanIDs,
	}, nil
}

// ActiveMembers implements Directory.
func (c *HTTPClient) ActiveMembers(ctx context.Context) ([]Member, error) {
	var out struct {
		Members []struct {
			UserID       string   `json:"user_id"`
			MembershipID string   `json:"membership_id"`
			PlanIDs      []string `json:"plan_ids"`
		} `json:"members"`
	}
	if err := c.get(ctx, "/memberships?status=active", &out); err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(out.Members))
	for _, m := range out.Members {
		members = append(members, Member{
			UserID:       m.UserID,
			MembershipID: m.MembershipID,
			PlanIDs:      m.PlanIDs,
		})
	}
	return members, nil
}

// RegularPrice implements Catalog.
func (c *HTTPClient) RegularPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var out struct {
		RegularPrice decimal.Decimal `json:"regular_price"`
	}
	path := "/products/" + url.PathEscape(productID)
	if err := c.get(ctx, path, &out); err != nil {
		return decimal.Zero, err
	}
	return out.RegularPrice, nil
}

// FlatRules applies one configured percentage to every product. It is the
// default DiscountRules implementation when the platform exposes no
// per-product rule engine.
type FlatRules struct {
	Percent func() decimal.Decimal
}

// PercentFor implements DiscountRules.
func (r FlatRules) PercentFor(ctx context.Context, productID string, planIDs []string) (decimal.Decimal, error) {
	return r.Percent(), nil
}
