// Package serverspec defines ServerSpec, the canonical, serializable
// description of an introspected MCP server. It is the sole artifact this
// module hands to external collaborators (OpenAPI/GraphQL/Protobuf
// emitters, code generators); nothing downstream of introspection depends
// on unexported types.
package serverspec

import "encoding/json"

// Capabilities mirrors the capabilities object a server advertises during
// initialize. Each field is a raw capability sub-object (or nil if the
// server didn't advertise it) so that unknown capability shapes survive
// the round trip without being dropped.
type Capabilities struct {
	Tools     json.RawMessage `json:"tools,omitempty"`
	Resources json.RawMessage `json:"resources,omitempty"`
	Prompts   json.RawMessage `json:"prompts,omitempty"`
	Sampling  json.RawMessage `json:"sampling,omitempty"`
	Logging   json.RawMessage `json:"logging,omitempty"`
}

// Tool describes one tool advertised by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Resource describes one resource advertised by resources/list.
type Resource struct {
	URI         string  `json:"uri"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	MimeType    *string `json:"mime_type,omitempty"`
}

// ResourceTemplate describes one template advertised by
// resource_templates/list (also accepted as resources/templates/list,
// per the MCP community convention the introspector follows).
type ResourceTemplate struct {
	URITemplate string  `json:"uri_template"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	MimeType    *string `json:"mime_type,omitempty"`
}

// PromptArgument describes one named argument a prompt accepts.
type PromptArgument struct {
	Name        string  `json:"name"`
	Required    *bool   `json:"required,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Prompt describes one prompt advertised by prompts/list.
type Prompt struct {
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ToolConflict records that two upstream-advertised tools shared a name.
// ServerSpec never drops a conflicting entry silently; it is surfaced here
// so that a downstream code generator can pick a disambiguation strategy
// instead of producing two identically-named symbols.
type ToolConflict struct {
	Name          string `json:"name"`
	FirstSeenAt   int    `json:"first_seen_index"`
	ConflictingAt int    `json:"conflicting_index"`
}

// CapabilityError annotates a capability the server advertised whose
// */list call failed. The collection for that capability is left empty;
// the overall introspection is still considered successful (only
// initialize failing is fatal).
type CapabilityError struct {
	Capability string `json:"capability"`
	Message    string `json:"message"`
}

// ServerSpec is the canonical, immutable description of an introspected
// MCP server. Field order here is the field order JSON encoding produces
// and is part of the documented wire contract.
type ServerSpec struct {
	Name             string             `json:"name"`
	Version          string             `json:"version"`
	ProtocolVersion  string             `json:"protocol_version"`
	Capabilities     Capabilities       `json:"capabilities"`
	Tools            []Tool             `json:"tools"`
	Resources        []Resource         `json:"resources"`
	ResourceTemplates []ResourceTemplate `json:"resource_templates"`
	Prompts          []Prompt           `json:"prompts"`

	// ToolConflicts and Errors are diagnostic annotations, not part of the
	// minimal shape, but additive and never consulted by an emitter that
	// only reads the fields above.
	ToolConflicts []ToolConflict    `json:"tool_conflicts,omitempty"`
	Errors        []CapabilityError `json:"capability_errors,omitempty"`
}

// HasCapability reports whether the server advertised the named top-level
// capability during initialize.
func (s *ServerSpec) HasCapability(name string) bool {
	switch name {
	case "tools":
		return s.Capabilities.Tools != nil
	case "resources":
		return s.Capabilities.Resources != nil
	case "prompts":
		return s.Capabilities.Prompts != nil
	case "sampling":
		return s.Capabilities.Sampling != nil
	case "logging":
		return s.Capabilities.Logging != nil
	default:
		return false
	}
}
