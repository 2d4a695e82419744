package mcp

// ProtocolVersion is the protocol date offered during initialize.
const ProtocolVersion = "2024-11-05"

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// Descriptor is one entry of a tools, resources, resource templates or
// prompts listing, kept exactly as the server sent it.
type Descriptor map[string]any

// Name returns the "name" field, or "" when it is absent or not a string.
func (d Descriptor) Name() string { return d.str("name") }

// URI returns the "uri" field of a resource, or the "uriTemplate" field of a
// resource template.
func (d Descriptor) URI() string {
	if u := d.str("uri"); u != "" {
		return u
	}
	return d.str("uriTemplate")
}

func (d Descriptor) str(key string) string {
	s, _ := d[key].(string)
	return s
}
