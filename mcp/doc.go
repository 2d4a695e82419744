// Package mcp contains the Model Context Protocol data types a stdio client
// exchanges with a server: method names, the initialize handshake envelopes
// and the request/result shapes of the list, call, read and get operations.
//
// The package is free of transport logic. Package stdio frames and correlates
// these values; package client turns them into a typed session API.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Using the constants avoids typographical mistakes.
//
// # Descriptors
//
// Tool, resource, resource template and prompt listings are kept as
// Descriptor values (decoded JSON objects) rather than fixed structs. An
// inspector has to show whatever the server sends, including fields newer
// than this package, so descriptors round-trip verbatim.
//
// # Pagination
//
// List results may carry a nextCursor. PaginatedRequest and PaginatedResult
// are embedded in the list envelopes; client follows cursors up to a bound.
//
// # Compatibility
//
// ProtocolVersion is the protocol date offered in the initialize request.
// Servers answer with the version they settled on, recorded in
// InitializeResult.ProtocolVersion.
package mcp
