package backend

import "context"

type subscribeRequest struct {
	Email       string   `json:"email"`
	Preferences []string `json:"preferences,omitempty"`
}

// Subscribe calls POST /api/newsletter/subscribe.
func (c *Client) Subscribe(ctx context.Context, email string, preferences []string) error {
	return c.post(ctx, "/api/newsletter/subscribe", subscribeRequest{Email: email, Preferences: preferences}, nil)
}
