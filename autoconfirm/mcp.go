// CLAUDE:SUMMARY Registers the autoconfirm MCP tools: template CRUD, settings, page control, trigger, status, fill history, dry run, update check.
package autoconfirm

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/engine"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/history"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/store"
	"github.com/hazyhaar/autoconfirm/bus"
	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/kit"
	"github.com/hazyhaar/autoconfirm/rules"
)

// RegisterMCP registers the autoconfirm tools on an MCP server.
func (d *Daemon) RegisterMCP(srv *mcp.Server) {
	d.registerTemplateTools(srv)
	d.registerSettingsTools(srv)
	d.registerPageTools(srv)
	d.registerDryRunTool(srv)
	d.registerCheckUpdateTool(srv)
}

func register[Req any](d *Daemon, srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint) {
	kit.RegisterMCPTool[Req](srv, tool, kit.Logging(d.logger, tool.Name)(endpoint))
}

var (
	idProperty      = map[string]any{"type": "string", "description": "Template ID"}
	matcherProperty = map[string]any{
		"type":        "object",
		"description": "Conjunctive predicates; omitted fields match anything",
		"properties": map[string]any{
			"urlPattern":            map[string]any{"type": "string", "description": "Wildcard over the full URL, * matches any run"},
			"containsText":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Every entry must appear in the page text"},
			"placeholderPattern":    map[string]any{"type": "string", "description": "Substring of the input placeholder"},
			"inputClassPattern":     map[string]any{"type": "string", "description": "Substring of the input class"},
			"containerClassPattern": map[string]any{"type": "string", "description": "Substring of an ancestor class"},
		},
	}
)

type emptyRequest struct{}

type idRequest struct {
	ID string `json:"id"`
}

type addTemplateRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Enabled     *bool         `json:"enabled,omitempty"`
	Matcher     rules.Matcher `json:"matcher"`
	FillValue   string        `json:"fillValue"`
}

type updateTemplateRequest struct {
	ID string `json:"id"`
	store.TemplatePatch
}

type deleteReply struct {
	Deleted string `json:"deleted"`
}

func (d *Daemon) registerTemplateTools(srv *mcp.Server) {
	register[emptyRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_list_templates",
		Description: "List the auto-fill templates in match order.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ any) (any, error) {
		return d.store.Templates(ctx)
	})

	register[addTemplateRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_add_template",
		Description: "Add a template. An empty fillValue lets the heuristic extractor find the value.",
		InputSchema: kit.InputSchema(map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"enabled":     map[string]any{"type": "boolean", "description": "Default true"},
			"matcher":     matcherProperty,
			"fillValue":   map[string]any{"type": "string", "description": "Literal to type into the field"},
		}, "name"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*addTemplateRequest)
		if r.Name == "" {
			return nil, errors.New("name is required")
		}
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		return d.store.AddTemplate(ctx, rules.Template{
			Name:        r.Name,
			Description: r.Description,
			Enabled:     enabled,
			Matcher:     r.Matcher,
			FillValue:   r.FillValue,
		})
	})

	register[updateTemplateRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_update_template",
		Description: "Change fields of a template. Omitted fields are kept.",
		InputSchema: kit.InputSchema(map[string]any{
			"id":          idProperty,
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"enabled":     map[string]any{"type": "boolean"},
			"matcher":     matcherProperty,
			"fillValue":   map[string]any{"type": "string"},
		}, "id"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*updateTemplateRequest)
		return d.store.UpdateTemplate(ctx, r.ID, r.TemplatePatch)
	})

	register[idRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_delete_template",
		Description: "Delete a template.",
		InputSchema: kit.InputSchema(map[string]any{"id": idProperty}, "id"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*idRequest)
		if err := d.store.DeleteTemplate(ctx, r.ID); err != nil {
			return nil, err
		}
		return deleteReply{Deleted: r.ID}, nil
	})

	register[idRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_toggle_template",
		Description: "Enable a disabled template or disable an enabled one.",
		InputSchema: kit.InputSchema(map[string]any{"id": idProperty}, "id"),
	}, func(ctx context.Context, req any) (any, error) {
		return d.store.ToggleTemplate(ctx, req.(*idRequest).ID)
	})

	register[emptyRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_reset_templates",
		Description: "Replace every template with the built-in defaults.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ any) (any, error) {
		return d.store.ResetTemplates(ctx)
	})
}

func (d *Daemon) registerSettingsTools(srv *mcp.Server) {
	register[emptyRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_get_settings",
		Description: "Return the heuristic engine toggles and the releases URL.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ any) (any, error) {
		return d.store.Settings(ctx)
	})

	register[rules.Settings](d, srv, &mcp.Tool{
		Name:        "autoconfirm_save_settings",
		Description: "Replace the settings.",
		InputSchema: kit.InputSchema(map[string]any{
			"genericEngines": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"placeholder":   map[string]any{"type": "boolean"},
					"label":         map[string]any{"type": "boolean"},
					"quotedText":    map[string]any{"type": "boolean"},
					"dialogPattern": map[string]any{"type": "boolean"},
				},
			},
			"update": map[string]any{
				"type":       "object",
				"properties": map[string]any{"releasesUrl": map[string]any{"type": "string"}},
			},
		}, "genericEngines"),
	}, func(ctx context.Context, req any) (any, error) {
		st := *req.(*rules.Settings)
		if err := d.store.SaveSettings(ctx, st); err != nil {
			return nil, err
		}
		return st, nil
	})
}

type openPageRequest struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

type pageRequest struct {
	PageID string `json:"page_id"`
}

func (d *Daemon) registerPageTools(srv *mcp.Server) {
	register[openPageRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_open_page",
		Description: "Open a URL in a controlled tab and start auto-filling its confirmation dialogs.",
		InputSchema: kit.InputSchema(map[string]any{
			"id":  map[string]any{"type": "string", "description": "Page ID (generated when empty)"},
			"url": map[string]any{"type": "string"},
		}, "url"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*openPageRequest)
		id, err := d.OpenPage(ctx, r.ID, r.URL)
		if err != nil {
			return nil, err
		}
		return pageRequest{PageID: id}, nil
	})

	register[pageRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_close_page",
		Description: "Stop controlling a page and close its tab.",
		InputSchema: kit.InputSchema(map[string]any{"page_id": map[string]any{"type": "string"}}, "page_id"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		if err := d.ClosePage(r.PageID); err != nil {
			return nil, err
		}
		return deleteReply{Deleted: r.PageID}, nil
	})

	register[pageRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_trigger_fill",
		Description: "Scan a page now and fill a confirmation field if one is found. An empty page_id scans every page.",
		InputSchema: kit.InputSchema(map[string]any{"page_id": map[string]any{"type": "string"}}),
	}, func(ctx context.Context, req any) (any, error) {
		ok, err := d.TriggerFill(ctx, req.(*pageRequest).PageID)
		if err != nil {
			return nil, err
		}
		return bus.FillReply{Success: true, Filled: ok}, nil
	})

	register[emptyRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_status",
		Description: "List controlled pages with their scan state and last result.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, func(context.Context, any) (any, error) {
		return d.Status(), nil
	})

	register[historyRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_history",
		Description: "List the values typed into pages, newest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"page_id": map[string]any{"type": "string", "description": "Only fills on this page"},
			"limit":   map[string]any{"type": "integer", "description": "Maximum entries (default 100)"},
		}),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*historyRequest)
		return d.History(ctx, history.Filter{PageID: r.PageID, Limit: r.Limit})
	})
}

type historyRequest struct {
	PageID string `json:"page_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type dryRunRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// ElementInfo identifies the element a dry run would write to.
type ElementInfo struct {
	Tag         string `json:"tag"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Class       string `json:"class,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// DryRunResult is what a scan of a static document would do.
type DryRunResult struct {
	WouldFill bool          `json:"would_fill"`
	Result    engine.Result `json:"result"`
	Element   *ElementInfo  `json:"element,omitempty"`
}

// DryRun parses html as the document at pageURL and reports what a scan
// would fill. Nothing is written.
func (d *Daemon) DryRun(ctx context.Context, pageURL, html string) (DryRunResult, error) {
	root, err := dom.ParseString(html)
	if err != nil {
		return DryRunResult{}, err
	}
	res, el := d.Plan(ctx, pageURL, root)
	out := DryRunResult{WouldFill: el != nil, Result: res}
	if el != nil {
		out.Element = &ElementInfo{
			Tag:         el.Tag,
			ID:          el.AttrOr("id"),
			Name:        el.AttrOr("name"),
			Class:       el.ClassName(),
			Placeholder: el.AttrOr("placeholder"),
		}
	}
	return out, nil
}

func (d *Daemon) registerDryRunTool(srv *mcp.Server) {
	register[dryRunRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_dry_run",
		Description: "Evaluate templates and heuristics against an HTML document without a browser. Reports the value and element a scan would fill.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "URL the document is served at"},
			"html": map[string]any{"type": "string", "description": "Document markup"},
		}, "url", "html"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*dryRunRequest)
		return d.DryRun(ctx, r.URL, r.HTML)
	})
}

func (d *Daemon) registerCheckUpdateTool(srv *mcp.Server) {
	register[emptyRequest](d, srv, &mcp.Tool{
		Name:        "autoconfirm_check_update",
		Description: "Compare the running version with the latest GitHub release.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ any) (any, error) {
		return d.CheckUpdate(ctx)
	})
}
