// Package introspect drives the MCP initialization handshake against a
// Backend Connector and assembles the resulting ServerSpec.
package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/mcperr"
	"github.com/mcpbridge/mcpbridge/internal/port/outbound"
	"github.com/mcpbridge/mcpbridge/pkg/mcp"
	"github.com/mcpbridge/mcpbridge/pkg/serverspec"
)

// DefaultTimeout is the wall-clock budget for the entire introspection
// sequence.
const DefaultTimeout = 30 * time.Second

// DefaultPageLimit bounds the number of pages fetched per capability
// collection, guarding against an adversarial or buggy paginator that never
// terminates.
const DefaultPageLimit = 1000

// ClientInfo is the fixed client identity this proxy presents during
// initialize.
type ClientInfo struct {
	Name    string
	Version string
}

// Introspector drives one introspection run against a BackendConnector.
type Introspector struct {
	connector       outbound.BackendConnector
	logger          *slog.Logger
	clientInfo      ClientInfo
	protocolVersion string
	timeout         time.Duration
	pageLimit       int
}

// Option configures an Introspector.
type Option func(*Introspector)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Introspector) { i.timeout = d }
}

// WithPageLimit overrides DefaultPageLimit.
func WithPageLimit(n int) Option {
	return func(i *Introspector) { i.pageLimit = n }
}

// New constructs an Introspector bound to connector.
func New(connector outbound.BackendConnector, clientInfo ClientInfo, protocolVersion string, logger *slog.Logger, opts ...Option) *Introspector {
	i := &Introspector{
		connector:       connector,
		logger:          logger,
		clientInfo:      clientInfo,
		protocolVersion: protocolVersion,
		timeout:         DefaultTimeout,
		pageLimit:       DefaultPageLimit,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type initializeResult struct {
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
}

// capabilitySpec binds a capability name to the list method it drives and
// the field of Capabilities that gates whether the introspector attempts
// it at all.
type capabilitySpec struct {
	name       string
	listMethod string
	itemsKey   string
}

var capabilityOrder = []capabilitySpec{
	{name: "tools", listMethod: "tools/list", itemsKey: "tools"},
	{name: "resources", listMethod: "resources/list", itemsKey: "resources"},
	{name: "prompts", listMethod: "prompts/list", itemsKey: "prompts"},
	{name: "resource_templates", listMethod: "resources/templates/list", itemsKey: "resourceTemplates"},
}

// Introspect runs the full handshake: initialize, initialized, then a
// paginated */list sweep of every advertised capability, within the
// Introspector's wall-clock budget.
func (i *Introspector) Introspect(ctx context.Context) (*serverspec.ServerSpec, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	initResult, err := i.sendInitialize(ctx)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.KindUpstreamError, mcp.CodeInternalError, "introspection: initialize failed", err)
	}

	if err := i.sendInitialized(ctx); err != nil {
		return nil, mcperr.Wrap(mcperr.KindUpstreamError, mcp.CodeInternalError, "introspection: initialized notification failed", err)
	}

	spec := &serverspec.ServerSpec{
		Name:            initResult.ServerInfo.Name,
		Version:         initResult.ServerInfo.Version,
		ProtocolVersion: initResult.ProtocolVersion,
	}
	if len(initResult.Capabilities) > 0 {
		_ = json.Unmarshal(initResult.Capabilities, &spec.Capabilities)
	}

	for _, capSpec := range capabilityOrder {
		// resource_templates rides on the resources capability, per the
		// community convention noted on serverspec.ResourceTemplate.
		gate := capSpec.name
		if capSpec.name == "resource_templates" {
			gate = "resources"
		}
		if !spec.HasCapability(gate) {
			continue
		}

		items, capErr := i.paginate(ctx, capSpec)
		if capErr != nil {
			if i.logger != nil {
				i.logger.WarnContext(ctx, "capability list failed during introspection",
					"capability", capSpec.name, "error", capErr)
			}
			spec.Errors = append(spec.Errors, serverspec.CapabilityError{
				Capability: capSpec.name,
				Message:    capErr.Error(),
			})
			continue
		}

		if err := assignCollection(spec, capSpec, items); err != nil {
			spec.Errors = append(spec.Errors, serverspec.CapabilityError{
				Capability: capSpec.name,
				Message:    err.Error(),
			})
		}
	}

	detectToolConflicts(spec)

	return spec, nil
}

func (i *Introspector) sendInitialize(ctx context.Context) (*initializeResult, error) {
	params, _ := json.Marshal(map[string]any{
		"protocolVersion": i.protocolVersion,
		"clientInfo": map[string]string{
			"name":    i.clientInfo.Name,
			"version": i.clientInfo.Version,
		},
		"capabilities": map[string]any{},
	})

	req := &mcp.Request{
		JSONRPC: "2.0",
		ID:      mcp.StringID("init-0"),
		Method:  "initialize",
		Params:  params,
	}

	replyCh, err := i.connector.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-replyCh:
		if !ok {
			return nil, mcperr.ErrConnectionClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		var result initializeResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("decode initialize result: %w", err)
		}
		return &result, nil
	case <-ctx.Done():
		return nil, mcperr.ErrTimeout
	}
}

func (i *Introspector) sendInitialized(ctx context.Context) error {
	notif := &mcp.Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	}
	return i.connector.SendNotification(ctx, notif)
}

func (i *Introspector) paginate(ctx context.Context, capSpec capabilitySpec) ([]json.RawMessage, error) {
	var all []json.RawMessage
	var cursor string
	reqID := 1

	for pageNum := 0; pageNum < i.pageLimit; pageNum++ {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		rawParams, _ := json.Marshal(params)

		req := &mcp.Request{
			JSONRPC: "2.0",
			ID:      mcp.StringID(fmt.Sprintf("introspect-%s-%d", capSpec.name, reqID)),
			Method:  capSpec.listMethod,
			Params:  rawParams,
		}
		reqID++

		replyCh, err := i.connector.SendRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		var resp *mcp.Response
		select {
		case r, ok := <-replyCh:
			if !ok {
				return nil, mcperr.ErrConnectionClosed
			}
			resp = r
		case <-ctx.Done():
			return nil, mcperr.ErrTimeout
		}

		if resp.Error != nil {
			return nil, resp.Error
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(resp.Result, &raw); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", capSpec.listMethod, err)
		}
		if itemsRaw, ok := raw[capSpec.itemsKey]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(itemsRaw, &items); err != nil {
				return nil, fmt.Errorf("decode %s items: %w", capSpec.listMethod, err)
			}
			all = append(all, items...)
		}

		var nextCursor string
		if nc, ok := raw["nextCursor"]; ok {
			_ = json.Unmarshal(nc, &nextCursor)
		}
		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return all, nil
}

func assignCollection(spec *serverspec.ServerSpec, capSpec capabilitySpec, items []json.RawMessage) error {
	switch capSpec.name {
	case "tools":
		tools := make([]serverspec.Tool, 0, len(items))
		for _, raw := range items {
			var t serverspec.Tool
			if err := json.Unmarshal(raw, &t); err != nil {
				return err
			}
			tools = append(tools, t)
		}
		spec.Tools = tools
	case "resources":
		resources := make([]serverspec.Resource, 0, len(items))
		for _, raw := range items {
			var r serverspec.Resource
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			resources = append(resources, r)
		}
		spec.Resources = resources
	case "prompts":
		prompts := make([]serverspec.Prompt, 0, len(items))
		for _, raw := range items {
			var p serverspec.Prompt
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			prompts = append(prompts, p)
		}
		spec.Prompts = prompts
	case "resource_templates":
		templates := make([]serverspec.ResourceTemplate, 0, len(items))
		for _, raw := range items {
			var rt serverspec.ResourceTemplate
			if err := json.Unmarshal(raw, &rt); err != nil {
				return err
			}
			templates = append(templates, rt)
		}
		spec.ResourceTemplates = templates
	}
	return nil
}

// detectToolConflicts annotates spec.ToolConflicts for every tool name that
// appears more than once, preserving the original insertion order instead
// of silently keeping only the last entry.
func detectToolConflicts(spec *serverspec.ServerSpec) {
	seen := make(map[string]int, len(spec.Tools))
	for idx, tool := range spec.Tools {
		if firstIdx, ok := seen[tool.Name]; ok {
			spec.ToolConflicts = append(spec.ToolConflicts, serverspec.ToolConflict{
				Name:          tool.Name,
				FirstSeenAt:   firstIdx,
				ConflictingAt: idx,
			})
			continue
		}
		seen[tool.Name] = idx
	}
}
