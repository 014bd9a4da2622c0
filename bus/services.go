package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hazyhaar/autoconfirm/rules"
)

// Service names.
const (
	ServiceGetTemplates = "autoconfirm_get_templates"
	ServicePageLoaded   = "autoconfirm_page_loaded"
	ServiceTriggerFill  = "autoconfirm_trigger_fill"
	ServicePing         = "autoconfirm_ping"
)

// PageRequest addresses one controlled page.
type PageRequest struct {
	PageID string `json:"page_id"`
}

// FillReply answers autoconfirm_trigger_fill. Success acknowledges that the
// scan ran; Filled reports whether it wrote a value.
type FillReply struct {
	Success bool `json:"success"`
	Filled  bool `json:"filled"`
}

// PingReply answers autoconfirm_ping.
type PingReply struct {
	OK bool `json:"ok"`
}

// Client wraps a Router with typed calls.
type Client struct {
	Router *Router
	Logger *slog.Logger
}

func (c *Client) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Templates fetches the template list. Any failure yields an empty list.
func (c *Client) Templates(ctx context.Context) []rules.Template {
	var tpls []rules.Template
	if err := callJSON(ctx, c.Router, ServiceGetTemplates, nil, &tpls); err != nil {
		c.log().Warn("bus: get templates failed", "error", err)
		return []rules.Template{}
	}
	if tpls == nil {
		tpls = []rules.Template{}
	}
	return tpls
}

// PageLoaded notifies that pageID finished a navigation.
func (c *Client) PageLoaded(ctx context.Context, pageID string) error {
	return callJSON(ctx, c.Router, ServicePageLoaded, PageRequest{PageID: pageID}, nil)
}

// TriggerFill asks for an immediate scan of pageID and reports whether it
// filled a value.
func (c *Client) TriggerFill(ctx context.Context, pageID string) (bool, error) {
	var reply FillReply
	if err := callJSON(ctx, c.Router, ServiceTriggerFill, PageRequest{PageID: pageID}, &reply); err != nil {
		return false, err
	}
	if !reply.Success {
		return false, ErrNotAcknowledged
	}
	return reply.Filled, nil
}

// Ping reports whether the bus answers.
func (c *Client) Ping(ctx context.Context) bool {
	var reply PingReply
	if err := callJSON(ctx, c.Router, ServicePing, nil, &reply); err != nil {
		return false
	}
	return reply.OK
}

// Serve adapts a typed function into a Handler. An empty payload decodes
// as the zero In.
func Serve[In, Out any](fn func(context.Context, In) (Out, error)) Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var in In
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &in); err != nil {
				return nil, err
			}
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}
