package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// rawResponse mirrors Response with the result left undecoded, so tests can
// assert on null results and typed payloads alike.
type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error"`
}

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

// runSession frames the given requests, serves them to completion, and
// returns the decoded responses in order.
func runSession(t *testing.T, reqs ...Request) []rawResponse {
	t.Helper()
	var in bytes.Buffer
	for _, req := range reqs {
		if err := WriteMessage(&in, req); err != nil {
			t.Fatalf("framing request: %v", err)
		}
	}

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(&out, logger, Options{DisableWatcher: true})
	if err := server.Serve(&in); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var responses []rawResponse
	r := bufio.NewReader(&out)
	for {
		payload, err := ReadMessage(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading response: %v", err)
		}
		var resp rawResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func request(id int, method string, params any) Request {
	req := Request{JSONRPC: "2.0", Method: method}
	if id > 0 {
		req.ID = json.RawMessage(strconv.Itoa(id))
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			panic(err)
		}
		req.Params = raw
	}
	return req
}

func initializeRequest(id int, root string) Request {
	return request(id, "initialize", InitializeParams{RootURI: "file://" + filepath.ToSlash(root)})
}

func positionParams(root, name string, line, character int) TextDocumentPositionParams {
	return TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file://" + filepath.ToSlash(filepath.Join(root, name))},
		Position:     Position{Line: line, Character: character},
	}
}

func decodeResult(t *testing.T, resp rawResponse, v any) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected response error: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		t.Fatalf("decoding result %s: %v", resp.Result, err)
	}
}

func Test_Server_RequestBeforeInitialize(t *testing.T) {
	responses := runSession(t,
		request(1, "textDocument/definition", positionParams("/tmp", "a.x", 0, 0)),
	)

	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].Error == nil || responses[0].Error.Code != CodeServerNotInitialized {
		t.Errorf("expected server-not-initialized error, got %+v", responses[0])
	}
}

func Test_Server_InitializeCapabilities(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})
	responses := runSession(t, initializeRequest(1, root))

	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	var result InitializeResult
	decodeResult(t, responses[0], &result)
	if !result.Capabilities.DefinitionProvider || !result.Capabilities.ReferencesProvider {
		t.Errorf("expected definition and references capabilities, got %+v", result.Capabilities)
	}
	if result.ServerInfo["name"] != "xdr-ls" {
		t.Errorf("unexpected server info %v", result.ServerInfo)
	}
}

func Test_Server_InitializeRejectsMissingRootURI(t *testing.T) {
	responses := runSession(t, request(1, "initialize", InitializeParams{}))

	if len(responses) != 1 || responses[0].Error == nil {
		t.Fatalf("expected an error response, got %+v", responses)
	}
	if responses[0].Error.Code != CodeInvalidParams {
		t.Errorf("expected invalid-params code, got %d", responses[0].Error.Code)
	}
}

func Test_Server_InitializeRejectsBadRoot(t *testing.T) {
	for _, uri := range []string{
		"http://example.com/ws",
		"file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "nosuch")),
	} {
		responses := runSession(t, request(1, "initialize", InitializeParams{RootURI: uri}))
		if len(responses) != 1 || responses[0].Error == nil || responses[0].Error.Code != CodeInvalidParams {
			t.Errorf("uri %s: expected invalid-params error, got %+v", uri, responses)
		}
	}
}

func Test_Server_DefinitionAcrossFiles(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"a.x": "struct Foo { int x; };",
		"b.x": "struct Bar { Foo f; };",
	})
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/definition", positionParams(root, "b.x", 0, 14)),
	)

	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	var loc Location
	decodeResult(t, responses[1], &loc)
	if loc.URI != "file://"+filepath.ToSlash(filepath.Join(root, "a.x")) {
		t.Errorf("expected definition in a.x, got %s", loc.URI)
	}
	want := Range{Start: Position{Line: 0, Character: 7}, End: Position{Line: 0, Character: 10}}
	if loc.Range != want {
		t.Errorf("expected range %+v, got %+v", want, loc.Range)
	}
}

func Test_Server_DefinitionMissIsNull(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/definition", positionParams(root, "a.x", 0, 3)),
	)

	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[1].Error != nil {
		t.Fatalf("a miss is not an error: %+v", responses[1].Error)
	}
	if string(responses[1].Result) != "null" {
		t.Errorf("expected null result, got %s", responses[1].Result)
	}
}

func Test_Server_References(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"a.x": "struct Foo { int x; };",
		"b.x": "struct Bar { Foo f; };\nstruct Baz { Foo g; };",
	})
	params := ReferenceParams{
		TextDocumentPositionParams: positionParams(root, "a.x", 0, 8),
		Context:                    ReferenceContext{IncludeDeclaration: true},
	}
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/references", params),
	)

	var locs []Location
	decodeResult(t, responses[1], &locs)
	if len(locs) != 3 {
		t.Fatalf("expected declaration plus 2 references, got %d", len(locs))
	}
	if locs[0].URI != "file://"+filepath.ToSlash(filepath.Join(root, "a.x")) {
		t.Errorf("expected the declaration first, got %s", locs[0].URI)
	}
	if locs[1].Range.Start.Line != 0 || locs[2].Range.Start.Line != 1 {
		t.Errorf("expected textual order of uses, got %+v", locs[1:])
	}

	params.Context.IncludeDeclaration = false
	responses = runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/references", params),
	)
	decodeResult(t, responses[1], &locs)
	if len(locs) != 2 {
		t.Errorf("expected 2 references without the declaration, got %d", len(locs))
	}
}

func Test_Server_ReferencesMissIsEmptyList(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})
	params := ReferenceParams{
		TextDocumentPositionParams: positionParams(root, "a.x", 0, 3),
	}
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/references", params),
	)

	if string(responses[1].Result) != "[]" {
		t.Errorf("expected empty array result, got %s", responses[1].Result)
	}
}

func Test_Server_HeaderFallback(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"rpc.x": "struct msghdr { int len; };",
		"rpc.h": "/* generated */\nstruct msghdr {\n\tint len;\n};\n",
	})
	// Cursor on msghdr in the header, line 1 cols 7-13.
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/definition", positionParams(root, "rpc.h", 1, 9)),
	)

	var loc Location
	decodeResult(t, responses[1], &loc)
	if loc.URI != "file://"+filepath.ToSlash(filepath.Join(root, "rpc.x")) {
		t.Errorf("expected the definition in rpc.x, got %s", loc.URI)
	}
	if loc.Range.Start != (Position{Line: 0, Character: 7}) {
		t.Errorf("expected the msghdr declaration span, got %+v", loc.Range)
	}
}

func Test_Server_HeaderFallbackWithoutSibling(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"rpc.x":   "struct msghdr { int len; };",
		"other.h": "struct msghdr { int len; };",
	})
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/definition", positionParams(root, "other.h", 0, 9)),
	)

	// other.x is not indexed, so the fallback yields a clean miss.
	if string(responses[1].Result) != "null" {
		t.Errorf("expected null result, got %s", responses[1].Result)
	}
}

func Test_Server_UnknownMethod(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/hover", positionParams(root, "a.x", 0, 8)),
		request(0, "some/notification", nil),
	)

	// The unknown notification produces no response at all.
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[1].Error == nil || responses[1].Error.Code != CodeMethodNotFound {
		t.Errorf("expected method-not-found, got %+v", responses[1])
	}
}

func Test_Server_DocumentChangesAreAcceptedNoOps(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"a.x": "struct Foo { int x; };",
		"b.x": "struct Bar { Foo f; };",
	})
	responses := runSession(t,
		initializeRequest(1, root),
		request(0, "textDocument/didOpen", map[string]any{}),
		request(0, "textDocument/didChange", map[string]any{}),
		request(0, "workspace/didChangeWatchedFiles", map[string]any{}),
		request(2, "textDocument/definition", positionParams(root, "b.x", 0, 14)),
	)

	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	var loc Location
	decodeResult(t, responses[1], &loc)
	if loc.Range.Start != (Position{Line: 0, Character: 7}) {
		t.Errorf("expected answers unchanged after change notifications, got %+v", loc.Range)
	}
}

func Test_Server_CancelSuppressesResponse(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})
	responses := runSession(t,
		initializeRequest(1, root),
		request(0, "$/cancelRequest", CancelParams{ID: json.RawMessage(`2`)}),
		request(2, "textDocument/definition", positionParams(root, "a.x", 0, 8)),
		request(3, "textDocument/definition", positionParams(root, "a.x", 0, 8)),
	)

	if len(responses) != 2 {
		t.Fatalf("expected the canceled response suppressed, got %d responses", len(responses))
	}
	if string(responses[1].ID) != "3" {
		t.Errorf("expected the surviving response for id 3, got %s", responses[1].ID)
	}
}

func Test_Server_SecondInitializeRejected(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"a.x": "struct Foo { int x; };",
		"b.x": "struct Bar { Foo f; };",
	})
	responses := runSession(t,
		initializeRequest(1, root),
		initializeRequest(2, root),
		request(3, "textDocument/definition", positionParams(root, "b.x", 0, 14)),
	)

	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}
	if responses[1].Error == nil || responses[1].Error.Code != CodeInvalidRequest {
		t.Errorf("expected invalid-request for repeat initialize, got %+v", responses[1])
	}
	// The first index keeps answering.
	var loc Location
	decodeResult(t, responses[2], &loc)
	if loc.Range.Start != (Position{Line: 0, Character: 7}) {
		t.Errorf("expected the original index to answer, got %+v", loc.Range)
	}
}

func Test_Server_StaleCancelDoesNotSuppressReusedID(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "textDocument/definition", positionParams(root, "a.x", 0, 8)),
		// This cancel arrives after id 2 was already answered.
		request(0, "$/cancelRequest", CancelParams{ID: json.RawMessage(`2`)}),
		request(2, "textDocument/definition", positionParams(root, "a.x", 0, 8)),
	)

	if len(responses) != 3 {
		t.Fatalf("expected the reused id to be answered, got %d responses", len(responses))
	}
	if string(responses[2].ID) != "2" {
		t.Errorf("expected a response for the reused id 2, got %s", responses[2].ID)
	}
}

func Test_Server_ShutdownAndExit(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})
	responses := runSession(t,
		initializeRequest(1, root),
		request(2, "shutdown", nil),
		request(0, "exit", nil),
		// Anything after exit must never be processed.
		request(3, "textDocument/definition", positionParams(root, "a.x", 0, 8)),
	)

	if len(responses) != 2 {
		t.Fatalf("expected no responses after exit, got %d", len(responses))
	}
	if string(responses[1].Result) != "null" {
		t.Errorf("expected null shutdown result, got %s", responses[1].Result)
	}
}

func Test_Server_SkipsMalformedPayload(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"a.x": "struct Foo { int x; };"})

	var in bytes.Buffer
	if err := WriteMessage(&in, initializeRequest(1, root)); err != nil {
		t.Fatal(err)
	}
	in.WriteString("Content-Length: 9\r\n\r\nnot json!")
	if err := WriteMessage(&in, request(2, "textDocument/definition", positionParams(root, "a.x", 0, 8))); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(&out, logger, Options{DisableWatcher: true})
	if err := server.Serve(&in); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var count int
	r := bufio.NewReader(&out)
	for {
		if _, err := ReadMessage(r); err != nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected the session to survive malformed input with 2 responses, got %d", count)
	}
}

func Test_URIPathConversion(t *testing.T) {
	path, err := uriToPath("file:///ws/protocols/nfs.x")
	if err != nil {
		t.Fatalf("uriToPath: %v", err)
	}
	if path != filepath.Clean("/ws/protocols/nfs.x") {
		t.Errorf("unexpected path %s", path)
	}

	path, err = uriToPath("file:///ws/with%20space/a.x")
	if err != nil {
		t.Fatalf("uriToPath escaped: %v", err)
	}
	if path != filepath.Clean("/ws/with space/a.x") {
		t.Errorf("expected unescaped path, got %s", path)
	}

	if _, err := uriToPath("http://host/a.x"); err == nil {
		t.Error("expected an error for a non-file scheme")
	}
	if _, err := uriToPath("file://"); err == nil {
		t.Error("expected an error for an empty path")
	}

	if uri := pathToURI("/ws/a.x"); uri != "file:///ws/a.x" {
		t.Errorf("unexpected uri %s", uri)
	}
}
