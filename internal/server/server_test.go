package server

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	fizz "github.com/fizzlang/fizz/pkg/embed"
)

func frame(t *testing.T, buf *bytes.Buffer, msg RequestMessage) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	fmt.Fprintf(buf, "Content-Length: %d\r\n\r\n%s", len(payload), payload)
}

func readResponses(t *testing.T, out *bytes.Buffer) []ResponseMessage {
	t.Helper()
	reader := bufio.NewReader(out)
	var responses []ResponseMessage
	for {
		content, err := readMessage(reader)
		if err != nil {
			break
		}
		if content == nil {
			continue
		}
		var resp ResponseMessage
		if err := json.Unmarshal(content, &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func runServer(t *testing.T, requests ...RequestMessage) []ResponseMessage {
	t.Helper()
	var in, out bytes.Buffer
	for _, req := range requests {
		frame(t, &in, req)
	}
	s := New(Options{In: &in, Out: &out})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return readResponses(t, &out)
}

func resultField(t *testing.T, resp ResponseMessage, key string) string {
	t.Helper()
	obj, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is not an object: %#v", resp.Result)
	}
	value, ok := obj[key].(string)
	if !ok {
		t.Fatalf("result has no string field %q: %#v", key, obj)
	}
	return value
}

func TestEvalRequest(t *testing.T) {
	responses := runServer(t, RequestMessage{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  "fizz/eval",
		Params:  SourceParams{Source: "let x = 40 in x + 2"},
	})
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].Error != nil {
		t.Fatalf("unexpected error: %v", responses[0].Error.Message)
	}
	if got := resultField(t, responses[0], "value"); got != "42" {
		t.Errorf("expected 42, got %q", got)
	}
}

func TestEvalSessionPersists(t *testing.T) {
	responses := runServer(t,
		RequestMessage{Jsonrpc: "2.0", ID: 1, Method: "fizz/eval", Params: SourceParams{Source: "let double x = x * 2"}},
		RequestMessage{Jsonrpc: "2.0", ID: 2, Method: "fizz/eval", Params: SourceParams{Source: "double 21"}},
	)
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[1].Error != nil {
		t.Fatalf("second eval failed: %v", responses[1].Error.Message)
	}
	if got := resultField(t, responses[1], "value"); got != "42" {
		t.Errorf("expected 42, got %q", got)
	}
}

func TestCompileRequest(t *testing.T) {
	responses := runServer(t, RequestMessage{
		Jsonrpc: "2.0",
		ID:      7,
		Method:  "fizz/compile",
		Params:  SourceParams{Source: "1 + 2"},
	})
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].Error != nil {
		t.Fatalf("unexpected error: %v", responses[0].Error.Message)
	}
	data, err := base64.StdEncoding.DecodeString(resultField(t, responses[0], "bytecode"))
	if err != nil {
		t.Fatalf("bytecode is not base64: %v", err)
	}
	if len(data) < 4 || data[0] != 'F' || data[1] != 'Z' || data[2] != 'B' {
		t.Errorf("bytecode missing bundle header: % x", data[:4])
	}

	engine := fizz.New()
	defer engine.Close()
	value, err := engine.RunBytecode(data)
	if err != nil {
		t.Fatalf("running compiled bytecode: %v", err)
	}
	if engine.Render(value) != "3" {
		t.Errorf("expected 3, got %s", engine.Render(value))
	}
}

func TestEvalErrorReported(t *testing.T) {
	responses := runServer(t, RequestMessage{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  "fizz/eval",
		Params:  SourceParams{Source: `1 + "two"`},
	})
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].Error == nil {
		t.Fatal("expected an error response")
	}
	if responses[0].Error.Code != CodeEvalFailed {
		t.Errorf("expected code %d, got %d", CodeEvalFailed, responses[0].Error.Code)
	}
}

func TestMissingSource(t *testing.T) {
	responses := runServer(t, RequestMessage{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  "fizz/eval",
	})
	if len(responses) != 1 || responses[0].Error == nil {
		t.Fatal("expected an error response")
	}
	if responses[0].Error.Code != CodeInvalidParams {
		t.Errorf("expected code %d, got %d", CodeInvalidParams, responses[0].Error.Code)
	}
}

func TestUnknownMethod(t *testing.T) {
	responses := runServer(t, RequestMessage{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  "fizz/format",
	})
	if len(responses) != 1 || responses[0].Error == nil {
		t.Fatal("expected an error response")
	}
	if responses[0].Error.Code != CodeMethodNotFound {
		t.Errorf("expected code %d, got %d", CodeMethodNotFound, responses[0].Error.Code)
	}
}

func TestUnknownNotificationIgnored(t *testing.T) {
	// Notifications (no ID) never get a response, even unknown ones.
	responses := runServer(t,
		RequestMessage{Jsonrpc: "2.0", Method: "fizz/didSomething"},
		RequestMessage{Jsonrpc: "2.0", ID: 2, Method: "fizz/eval", Params: SourceParams{Source: "true"}},
	)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if got := resultField(t, responses[0], "value"); got != "true" {
		t.Errorf("expected true, got %q", got)
	}
}

func TestExitStopsServer(t *testing.T) {
	var in, out bytes.Buffer
	frame(t, &in, RequestMessage{Jsonrpc: "2.0", Method: "exit"})
	frame(t, &in, RequestMessage{Jsonrpc: "2.0", ID: 1, Method: "fizz/eval", Params: SourceParams{Source: "1"}})

	s := New(Options{In: &in, Out: &out})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if responses := readResponses(t, &out); len(responses) != 0 {
		t.Errorf("expected no responses after exit, got %d", len(responses))
	}
}

func TestMalformedPayload(t *testing.T) {
	var in, out bytes.Buffer
	fmt.Fprintf(&in, "Content-Length: 9\r\n\r\nnot json!")
	s := New(Options{In: &in, Out: &out})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	responses := readResponses(t, &out)
	if len(responses) != 1 || responses[0].Error == nil {
		t.Fatal("expected a parse error response")
	}
	if responses[0].Error.Code != CodeParseError {
		t.Errorf("expected code %d, got %d", CodeParseError, responses[0].Error.Code)
	}
}

func TestReadMessageSkipsExtraHeaders(t *testing.T) {
	payload := `{"jsonrpc":"2.0"}`
	raw := fmt.Sprintf("Content-Length: %d\r\nContent-Type: application/json\r\n\r\n%s", len(payload), payload)
	reader := bufio.NewReader(strings.NewReader(raw))

	// First line yields the length; the extra header is consumed
	// before the payload.
	content, err := readMessage(reader)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if string(content) != payload {
		t.Errorf("expected %q, got %q", payload, content)
	}
}

func TestWorkerTimeout(t *testing.T) {
	w := NewWorker(fizz.New())
	defer w.Stop()

	_, err := w.Do(10*time.Millisecond, func(e *fizz.Engine) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The worker drains the abandoned request and stays usable.
	value, err := w.Do(time.Second, func(e *fizz.Engine) (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("worker unusable after timeout: %v", err)
	}
	if value != "ok" {
		t.Errorf("expected ok, got %v", value)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewWorker(fizz.New())
	defer w.Stop()

	_, err := w.Do(time.Second, func(e *fizz.Engine) (interface{}, error) {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
}
