// Package directory reads spaces and user profiles from the listing and
// profile services.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"ms-booking/internal/models"
)

type Client struct {
	ListingURL string
	UserURL    string
	HTTP       *http.Client
	Tokens     TokenSource
}

func NewClient(listingURL, userURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if tokens == nil {
		tokens = NoToken{}
	}
	return &Client{ListingURL: listingURL, UserURL: userURL, HTTP: httpClient, Tokens: tokens}
}

// GetSpace → GET {listing}/internal/spaces/{id}
func (c *Client) GetSpace(ctx context.Context, spaceID string) (*models.Space, error) {
	var space models.Space
	if err := c.get(ctx, c.ListingURL+"/internal/spaces/"+url.PathEscape(spaceID), &space); err != nil {
		return nil, fmt.Errorf("space %s: %w", spaceID, err)
	}
	if space.ID == "" {
		space.ID = spaceID
	}
	if space.Capacity <= 0 {
		space.Capacity = 1
	}
	return &space, nil
}

// GetUser → GET {user}/internal/users/{id}
func (c *Client) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := c.get(ctx, c.UserURL+"/internal/users/"+url.PathEscape(userID), &profile); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return &profile, nil
}

func (c *Client) get(ctx context.Context, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("service token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
