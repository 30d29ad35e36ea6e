package lsp

import "encoding/json"

// JSON-RPC 2.0 envelope and the subset of LSP payload types this server
// speaks. DTOs only; framing lives in framing.go and behavior in server.go.

// Request is one incoming JSON-RPC message. Notifications carry no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one outgoing JSON-RPC message, correlated by ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is a protocol-level error condition.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC / LSP error codes used by this server.
const (
	CodeInvalidRequest       = -32600
	CodeInvalidParams        = -32602
	CodeMethodNotFound       = -32601
	CodeServerNotInitialized = -32002
)

// Position is a zero-based line/character location. XDR sources are ASCII,
// so UTF-16 code units, bytes, and characters coincide.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location names a range within a document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentPositionParams is the shared shape of definition and
// references requests.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// ReferenceParams extends the positional params with the include-declaration
// flag.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// ReferenceContext carries the include-declaration flag.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// InitializeParams is the subset of the initialize request this server reads.
type InitializeParams struct {
	RootURI string `json:"rootUri,omitempty"`
}

// ServerCapabilities declares what this server supports: definition and
// references lookup, nothing else.
type ServerCapabilities struct {
	DefinitionProvider bool `json:"definitionProvider"`
	ReferencesProvider bool `json:"referencesProvider"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   map[string]string  `json:"serverInfo,omitempty"`
}

// CancelParams identifies the request a $/cancelRequest targets.
type CancelParams struct {
	ID json.RawMessage `json:"id"`
}
