package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// PatreonEndpoint is Patreon's OAuth2 endpoint pair.
var PatreonEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.patreon.com/oauth2/authorize",
	TokenURL: "https://www.patreon.com/api/oauth2/token",
}

const identityURL = "https://www.patreon.com/api/oauth2/v2/identity?fields%5Buser%5D=email,full_name,image_url"

// PatreonUser is the slice of the identity response the catalog keeps.
type PatreonUser struct {
	ID       string
	Email    string
	FullName string
	ImageURL string
}

// GetPatreonUserInfo fetches the authenticated user's identity with
// the exchanged OAuth token.
func GetPatreonUserInfo(ctx context.Context, token *oauth2.Token) (*PatreonUser, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identityURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Email    string `json:"email"`
				FullName string `json:"full_name"`
				ImageURL string `json:"image_url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Data.ID == "" {
		return nil, fmt.Errorf("identity response missing user id")
	}

	return &PatreonUser{
		ID:       payload.Data.ID,
		Email:    payload.Data.Attributes.Email,
		FullName: payload.Data.Attributes.FullName,
		ImageURL: payload.Data.Attributes.ImageURL,
	}, nil
}
