package mcp

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// MCP method names and notifications.
const (
	// Initialization
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	// Tools
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	// Resources
	ResourcesListMethod          Method = "resources/list"
	ResourcesReadMethod          Method = "resources/read"
	ResourcesTemplatesListMethod Method = "resources/templates/list"

	// Prompts
	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"

	// Logging
	LoggingMessageNotificationMethod Method = "notifications/message"

	// General
	PingMethod Method = "ping"
)

// PaginatedRequest carries a cursor for paginated list requests.
type PaginatedRequest struct {
	Cursor string `json:"cursor,omitzero"`
}

// PaginatedResult carries a cursor for continuing pagination.
type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitzero"`
}

// InitializeRequest opens a session. The inspector advertises no client
// capabilities.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// NewInitializeRequest builds the handshake request for client.
func NewInitializeRequest(client ImplementationInfo) InitializeRequest {
	return InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      client,
	}
}

// InitializeResult returns negotiated capabilities and server info.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion,omitzero"`
	Capabilities    map[string]any     `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []Descriptor `json:"tools"`
	PaginatedResult
}

// ListResourcesResult is the result of resources/list.
type ListResourcesResult struct {
	Resources []Descriptor `json:"resources"`
	PaginatedResult
}

// ListResourceTemplatesResult is the result of resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []Descriptor `json:"resourceTemplates"`
	PaginatedResult
}

// ListPromptsResult is the result of prompts/list.
type ListPromptsResult struct {
	Prompts []Descriptor `json:"prompts"`
	PaginatedResult
}

// CallToolRequest invokes a tool. Arguments is always sent, as {} when empty.
type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ReadResourceRequest reads a resource by URI.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// GetPromptRequest renders a prompt. Arguments is always sent, as {} when empty.
type GetPromptRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// LoggingMessageParams is the payload of a notifications/message sent by the
// server.
type LoggingMessageParams struct {
	Level  string `json:"level"`
	Logger string `json:"logger,omitzero"`
	Data   any    `json:"data"`
}
