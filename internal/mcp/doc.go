// Package mcp wires the refract core onto the MCP stdio transport. It
// constructs the engine, session registry, and plugin registry, registers
// every dispatchable tool with the mcp-go server, and maps the internal
// error taxonomy onto MCP error codes.
//
// The transport layer stays thin: argument payloads pass straight into
// plugin dispatch, results are serialized as JSON text content, and every
// failure surfaces as a coded MCP error rather than a raw fault.
package mcp
