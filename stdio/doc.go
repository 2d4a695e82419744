// Package stdio implements the client side of the MCP stdio transport: it
// spawns (or attaches to) a server, writes framed JSON-RPC requests to its
// stdin and correlates the responses read back from its stdout.
//
// Characteristics
//
//	Connection model : 1 client <-> 1 child process
//	Framing          : Content-Length headers (default) or newline-delimited JSON
//	Concurrency      : any number of concurrent Call/Notify; one reader goroutine
//	Correlation      : by request id only; responses may arrive in any order
//
// A single reader goroutine drains the server's output and resolves pending
// calls. It exits by itself on EOF, on a read error, or shortly after the
// child exits. Notifications from the server are logged and discarded; server
// pings are answered and any other server request gets "method not found".
//
// Example:
//
//	conn, err := stdio.Dial(process.NewCommand("npx", "-y", "@modelcontextprotocol/server-everything"))
//	if err != nil { log.Fatal(err) }
//	defer conn.Close(5 * time.Second)
//	resp, err := conn.Call(ctx, "tools/list", map[string]any{})
//
// Most callers want the typed API in package client instead.
package stdio
