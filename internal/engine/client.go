package engine

import (
	"context"
	"encoding/json"
)

// Client binds an Engine to one user identity, typically the installation
// id from the identity package. App code holds a Client and never passes
// user ids around; server and CLI surfaces use the Engine directly with
// per-request ids.
type Client struct {
	engine *Engine
	userID string
}

func (e *Engine) Client(userID string) *Client {
	return &Client{engine: e, userID: userID}
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) GetVariant(ctx context.Context, experimentID string, ec Context) (string, bool) {
	return c.engine.GetVariant(ctx, c.userID, experimentID, ec)
}

func (c *Client) GetVariantConfig(ctx context.Context, experimentID string, ec Context) (json.RawMessage, bool) {
	return c.engine.GetVariantConfig(ctx, c.userID, experimentID, ec)
}

func (c *Client) Evaluate(ctx context.Context, experimentID string, ec Context) (string, json.RawMessage, bool) {
	return c.engine.Evaluate(ctx, c.userID, experimentID, ec)
}

func (c *Client) IsFeatureEnabled(ctx context.Context, flagID string, ec Context) bool {
	return c.engine.IsFeatureEnabled(ctx, c.userID, flagID, ec)
}

func (c *Client) FeatureValue(ctx context.Context, flagID string, def json.RawMessage, ec Context) json.RawMessage {
	return c.engine.FeatureValue(ctx, c.userID, flagID, def, ec)
}

func (c *Client) RecordConversion(ctx context.Context, experimentID, name string, value *float64, metadata map[string]string) {
	c.engine.RecordConversion(ctx, c.userID, experimentID, name, value, metadata)
}

func (c *Client) RecordCustom(ctx context.Context, experimentID, name string, value *float64, metadata map[string]string) {
	c.engine.RecordCustom(ctx, c.userID, experimentID, name, value, metadata)
}
