// Package lsp implements the request-serving layer: a framed JSON-RPC loop
// over stdio, the initialize/shutdown/exit lifecycle, and the definition and
// references handlers backed by the symbol index. The index is built once
// during initialize and never mutated; document change notifications are
// accepted for protocol conformance but have no effect on answers.
package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drebelsky/xdr-ls/lexer"
	"github.com/drebelsky/xdr-ls/symbols"
	"github.com/drebelsky/xdr-ls/watcher"
	"github.com/drebelsky/xdr-ls/workspace"
)

const serverVersion = "0.1.0"

type lifecycleState int

const (
	stateUninitialized lifecycleState = iota
	stateReady
	stateShuttingDown
)

// Options configures workspace discovery performed at initialize time.
type Options struct {
	ExcludePatterns  []string
	MaxFileSizeBytes int64
	DisableWatcher   bool // used by tests; the watcher only logs staleness
}

// Server is the stateless request dispatcher plus the one-time index-build
// lifecycle. One Server serves one editor session over one stdio pair.
type Server struct {
	out    io.Writer
	logger *slog.Logger
	opts   Options

	state    lifecycleState
	rootDir  string
	index    *symbols.Index
	watcher  *watcher.Watcher
	canceled map[string]struct{}
	answered map[string]struct{}
}

// NewServer creates a server writing responses to out. No indexing happens
// until the client sends initialize.
func NewServer(out io.Writer, logger *slog.Logger, opts Options) *Server {
	return &Server{
		out:      out,
		logger:   logger,
		opts:     opts,
		canceled: make(map[string]struct{}),
		answered: make(map[string]struct{}),
	}
}

// Serve runs the read-dispatch loop until the client sends exit or the input
// closes. Malformed JSON payloads are skipped rather than aborting the
// session.
func (s *Server) Serve(in io.Reader) error {
	defer s.closeIndex()
	r := bufio.NewReader(in)
	for {
		payload, err := ReadMessage(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.logger.Warn("skipping malformed request", "error", err)
			continue
		}

		if !s.dispatch(req) {
			return nil
		}
	}
}

// dispatch routes one message. Returns false when the process should exit.
func (s *Server) dispatch(req Request) bool {
	switch req.Method {
	case "initialize":
		s.onInitialize(req)
	case "initialized":
		s.logger.Info("client reports initialized")
	case "shutdown":
		s.state = stateShuttingDown
		s.respond(req.ID, nil, nil)
	case "exit":
		return false

	case "textDocument/definition":
		if s.requireReady(req) {
			s.onDefinition(req)
		}
	case "textDocument/references":
		if s.requireReady(req) {
			s.onReferences(req)
		}

	// Accepted for protocol conformance; the index is immutable, so these
	// carry no effect. See the staleness watcher for how changes surface.
	case "textDocument/didOpen", "textDocument/didChange", "textDocument/didSave",
		"textDocument/didClose", "workspace/didChangeWatchedFiles":
		s.logger.Debug("document change accepted, index is static", "method", req.Method)

	case "$/cancelRequest":
		s.onCancel(req.Params)

	default:
		if len(req.ID) > 0 {
			s.respond(req.ID, nil, &ResponseError{Code: CodeMethodNotFound, Message: "method not found"})
		}
	}
	return true
}

// requireReady rejects requests that arrive before the index exists.
func (s *Server) requireReady(req Request) bool {
	if s.state == stateReady {
		return true
	}
	s.respond(req.ID, nil, &ResponseError{Code: CodeServerNotInitialized, Message: "server not initialized"})
	return false
}

// respond sends one correlated response unless the request was canceled, in
// which case no response is produced (best-effort cancellation; queries are
// pure lookups with nothing in-flight to abort).
func (s *Server) respond(id json.RawMessage, result any, respErr *ResponseError) {
	if len(id) > 0 {
		s.answered[string(id)] = struct{}{}
		if _, ok := s.canceled[string(id)]; ok {
			delete(s.canceled, string(id))
			s.logger.Debug("suppressing response for canceled request", "id", string(id))
			return
		}
	}
	if respErr == nil && result == nil {
		// Explicit null result; omitting the field would be an invalid response.
		result = json.RawMessage("null")
	}
	if err := WriteMessage(s.out, Response{JSONRPC: "2.0", ID: id, Result: result, Error: respErr}); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) onCancel(params json.RawMessage) {
	var p CancelParams
	if err := json.Unmarshal(params, &p); err != nil || len(p.ID) == 0 {
		return
	}
	// A cancel for an already-answered request is a no-op. Recording it
	// would suppress the response of a later request reusing the same id.
	if _, done := s.answered[string(p.ID)]; done {
		return
	}
	s.canceled[string(p.ID)] = struct{}{}
}

// onInitialize validates the workspace root, runs the one-time discovery,
// parse, and index build, and transitions the server to ready.
func (s *Server) onInitialize(req Request) {
	// The index is built exactly once per session; a repeat initialize would
	// leak the previous index and double the staleness watcher.
	if s.state != stateUninitialized {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidRequest, Message: "server already initialized"})
		return
	}

	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "malformed initialize params"})
			return
		}
	}
	if params.RootURI == "" {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "initialize requires rootUri"})
		return
	}
	rootDir, err := uriToPath(params.RootURI)
	if err != nil {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "rootUri is not a valid file path"})
		return
	}
	info, err := os.Stat(rootDir)
	if err != nil || !info.IsDir() {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "rootUri does not name a directory"})
		return
	}

	start := time.Now()
	matcher := workspace.NewMatcher(workspace.MatcherOptions{
		RootDir:          rootDir,
		ExcludePatterns:  s.opts.ExcludePatterns,
		MaxFileSizeBytes: s.opts.MaxFileSizeBytes,
	})
	paths, err := workspace.Discover(rootDir, matcher)
	if err != nil {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "cannot read workspace root"})
		return
	}
	files := workspace.Load(paths, s.logger)

	builder := symbols.NewBuilder()
	for _, file := range files {
		builder.Add(file)
	}
	index, err := builder.Build()
	if err != nil {
		s.logger.Error("index build failed", "error", err)
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "failed to build workspace index"})
		return
	}

	s.rootDir = rootDir
	s.index = index
	s.state = stateReady

	stats := index.Stats()
	s.logger.Info("workspace indexed",
		"root", rootDir,
		"files", stats.Files,
		"decls", stats.Decls,
		"uses", stats.Uses,
		"unresolved", stats.Unresolved,
		"shadowed", stats.Shadowed,
		"diagnostics", stats.Diagnostics,
		"duration", time.Since(start),
	)

	if !s.opts.DisableWatcher {
		s.startStalenessWatcher(rootDir, matcher)
	}

	s.respond(req.ID, InitializeResult{
		Capabilities: ServerCapabilities{
			DefinitionProvider: true,
			ReferencesProvider: true,
		},
		ServerInfo: map[string]string{"name": "xdr-ls", "version": serverVersion},
	}, nil)
}

// startStalenessWatcher begins logging when indexed files change on disk.
// Watcher failure is not fatal; the server just loses staleness reporting.
func (s *Server) startStalenessWatcher(rootDir string, matcher *workspace.Matcher) {
	w, err := watcher.New(rootDir, matcher, s.logger)
	if err != nil {
		s.logger.Warn("failed to start staleness watcher", "error", err)
		return
	}
	s.watcher = w
	go w.Start()
	go func() {
		for batch := range w.Changes() {
			for _, change := range batch {
				s.logger.Warn("workspace changed after indexing, answers may be stale until restart",
					"path", change.Path,
					"op", change.Op.String(),
				)
			}
		}
	}()
}

func (s *Server) closeIndex() {
	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Warn("failed to close index", "error", err)
		}
	}
}

// onDefinition answers textDocument/definition with zero or one location.
func (s *Server) onDefinition(req Request) {
	var params TextDocumentPositionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "malformed definition params"})
		return
	}
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "textDocument.uri is not a valid file path"})
		return
	}
	pos := lexer.Position{Line: params.Position.Line, Col: params.Position.Character}

	loc, ok := s.definitionAt(path, pos)
	if !ok {
		s.respond(req.ID, nil, nil)
		return
	}
	s.respond(req.ID, toProtocolLocation(loc), nil)
}

// onReferences answers textDocument/references with zero or more locations.
func (s *Server) onReferences(req Request) {
	var params ReferenceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "malformed references params"})
		return
	}
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		s.respond(req.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "textDocument.uri is not a valid file path"})
		return
	}
	pos := lexer.Position{Line: params.Position.Line, Col: params.Position.Character}

	locs := s.referencesAt(path, pos, params.Context.IncludeDeclaration)
	out := make([]Location, 0, len(locs))
	for _, loc := range locs {
		out = append(out, toProtocolLocation(loc))
	}
	s.respond(req.ID, out, nil)
}

// definitionAt resolves a definition query, falling back to header-alias
// resolution for files absent from the index.
func (s *Server) definitionAt(path string, pos lexer.Position) (symbols.Location, bool) {
	if s.index.HasFile(path) {
		return s.index.Definition(path, pos)
	}
	di, ok := s.headerFallbackDecl(path, pos)
	if !ok {
		return symbols.Location{}, false
	}
	return s.index.DeclLocation(di), true
}

func (s *Server) referencesAt(path string, pos lexer.Position, includeDecl bool) []symbols.Location {
	if s.index.HasFile(path) {
		return s.index.References(path, pos, includeDecl)
	}
	di, ok := s.headerFallbackDecl(path, pos)
	if !ok {
		return nil
	}
	return s.index.DeclReferences(di, includeDecl)
}

// headerFallbackDecl handles queries into generated headers: when the
// requested path is a .h absent from the index whose extension-substituted .x
// sibling is indexed, the header text is lexed purely to find the identifier
// under the cursor, and that name is resolved among the .x file's
// declarations. Headers and their sources are not textually identical, so
// resolution is by identifier text, never by raw offset.
func (s *Server) headerFallbackDecl(path string, pos lexer.Position) (int, bool) {
	ext := filepath.Ext(path)
	if !strings.EqualFold(ext, ".h") {
		return -1, false
	}
	candidate := strings.TrimSuffix(path, ext) + ".x"
	if !s.index.HasFile(candidate) {
		return -1, false
	}

	name, ok := identifierAt(path, pos)
	if !ok {
		return -1, false
	}
	di, ok := s.index.DeclByName(candidate, name)
	if !ok {
		s.logger.Debug("header fallback found no declaration", "header", path, "name", name)
		return -1, false
	}
	return di, true
}

// identifierAt reads and lexes the header to find the identifier text under
// the cursor. Any read failure yields an empty result, never an error.
func identifierAt(path string, pos lexer.Position) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil || hasNulPrefix(data) {
		return "", false
	}
	for _, tok := range lexer.New(string(data)).Scan() {
		if tok.Kind == lexer.EOF {
			break
		}
		if tok.Kind == lexer.ID && tok.Span.Contains(pos) {
			return tok.Text, true
		}
	}
	return "", false
}

func hasNulPrefix(data []byte) bool {
	limit := 512
	if len(data) < limit {
		limit = len(data)
	}
	for i := 0; i < limit; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}

func toProtocolLocation(loc symbols.Location) Location {
	return Location{
		URI: pathToURI(loc.Path),
		Range: Range{
			Start: Position{Line: loc.Span.Start.Line, Character: loc.Span.Start.Col},
			End:   Position{Line: loc.Span.End.Line, Character: loc.Span.End.Col},
		},
	}
}

// uriToPath converts a file:// URI to a cleaned filesystem path.
func uriToPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file://") {
		return "", fmt.Errorf("unsupported uri scheme: %s", uri)
	}
	rest := strings.TrimPrefix(uri, "file://")
	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("unescaping uri: %w", err)
	}
	if unescaped == "" {
		return "", fmt.Errorf("empty uri path")
	}
	return filepath.Clean(unescaped), nil
}

// pathToURI converts a filesystem path to a file:// URI.
func pathToURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}
