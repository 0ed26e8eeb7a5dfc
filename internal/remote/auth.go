package remote

import (
	"context"
	"time"

	"github.com/ggufchat/chat-engine/internal/model"
)

// AuthClient talks to the remote auth service. Identities it returns are
// opaque; nothing here inspects or validates credentials locally.
type AuthClient struct {
	transport
}

// NewAuthClient creates an auth client for the given base URL.
func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	return &AuthClient{transport: newTransport(baseURL, timeout)}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type identityResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (r identityResponse) identity() model.Identity {
	return model.Identity{UserID: r.UserID, Email: r.Email}
}

// Login exchanges credentials for a user identity.
func (c *AuthClient) Login(ctx context.Context, email, password string) (model.Identity, error) {
	var out identityResponse
	err := c.doJSON(ctx, "POST", "/api/auth/login", credentialsRequest{Email: email, Password: password}, &out)
	if err != nil {
		return model.Identity{}, err
	}
	return out.identity(), nil
}

// Signup registers a new account and returns its identity.
func (c *AuthClient) Signup(ctx context.Context, email, password string) (model.Identity, error) {
	var out identityResponse
	err := c.doJSON(ctx, "POST", "/api/auth/signup", credentialsRequest{Email: email, Password: password}, &out)
	if err != nil {
		return model.Identity{}, err
	}
	return out.identity(), nil
}

type updateProfileRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// UpdateProfile changes the account email and returns the fresh identity.
func (c *AuthClient) UpdateProfile(ctx context.Context, userID, email string) (model.Identity, error) {
	var out identityResponse
	err := c.doJSON(ctx, "POST", "/api/auth/update-profile", updateProfileRequest{UserID: userID, Email: email}, &out)
	if err != nil {
		return model.Identity{}, err
	}
	return out.identity(), nil
}
