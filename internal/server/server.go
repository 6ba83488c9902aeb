// Package server exposes the interpreter over JSON-RPC 2.0 on stdio.
//
// Two methods are served: "fizz/compile" turns source text into a
// base64-encoded bytecode bundle, and "fizz/eval" compiles, runs and
// renders the result. All engine access is funneled through a single
// Worker goroutine; each request carries an evaluation deadline.
package server

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/fizzlang/fizz/internal/config"
	fizz "github.com/fizzlang/fizz/pkg/embed"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("fizz.server")

// Server reads Content-Length framed JSON-RPC messages from In and
// writes responses to Out.
type Server struct {
	worker  *Worker
	in      io.Reader
	out     io.Writer
	timeout time.Duration

	mu sync.Mutex // serializes writes to out
}

// Options configures a Server. Zero values fall back to sane defaults.
type Options struct {
	In          io.Reader
	Out         io.Writer
	EvalTimeout time.Duration
	Engine      *fizz.Engine
}

// New creates a Server. When opts.Engine is nil a fresh engine with
// the full standard library is used.
func New(opts Options) *Server {
	engine := opts.Engine
	if engine == nil {
		engine = fizz.New()
	}
	timeout := opts.EvalTimeout
	if timeout <= 0 {
		timeout = config.DefaultEvalTimeout
	}
	return &Server{
		worker:  NewWorker(engine),
		in:      opts.In,
		out:     opts.Out,
		timeout: timeout,
	}
}

// Run processes messages until the input stream closes or an "exit"
// notification arrives.
func (s *Server) Run() error {
	defer s.worker.Stop()

	reader := bufio.NewReader(s.in)
	log.Info("server listening")

	for {
		content, err := readMessage(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if content == nil {
			continue
		}
		if stop := s.handleMessage(content); stop {
			return nil
		}
	}
}

// readMessage reads one Content-Length framed payload. It returns
// (nil, nil) for header lines it does not understand so the loop can
// resynchronize on the next frame.
func readMessage(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, nil
	}

	if !strings.HasPrefix(line, "Content-Length: ") {
		log.Warningf("ignoring unexpected header: %s", line)
		return nil, nil
	}
	contentLength, err := strconv.Atoi(strings.TrimPrefix(line, "Content-Length: "))
	if err != nil {
		return nil, fmt.Errorf("bad Content-Length: %w", err)
	}

	// Skip remaining headers up to the blank separator line.
	for {
		sep, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if strings.TrimRight(sep, "\r\n") == "" {
			break
		}
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, content); err != nil {
		return nil, err
	}
	return content, nil
}

// handleMessage dispatches one decoded frame. It reports whether the
// server should stop.
func (s *Server) handleMessage(content []byte) bool {
	var msg RequestMessage
	if err := json.Unmarshal(content, &msg); err != nil {
		log.Errorf("malformed request: %v", err)
		s.reply(ResponseMessage{
			Jsonrpc: "2.0",
			Error:   &Error{Code: CodeParseError, Message: err.Error()},
		})
		return false
	}

	log.Debugf("request method=%s id=%v", msg.Method, msg.ID)

	switch msg.Method {
	case "fizz/compile":
		s.respond(msg, s.compile)
	case "fizz/eval":
		s.respond(msg, s.eval)
	case "shutdown":
		s.reply(ResponseMessage{Jsonrpc: "2.0", ID: msg.ID})
	case "exit":
		return true
	default:
		if msg.ID != nil {
			s.reply(ResponseMessage{
				Jsonrpc: "2.0",
				ID:      msg.ID,
				Error:   &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", msg.Method)},
			})
		}
	}
	return false
}

// respond decodes the source parameter, invokes the handler and writes
// the response frame.
func (s *Server) respond(msg RequestMessage, handler func(string) (interface{}, *Error)) {
	source, errMsg := sourceOf(msg.Params)
	if errMsg != nil {
		s.reply(ResponseMessage{Jsonrpc: "2.0", ID: msg.ID, Error: errMsg})
		return
	}
	result, rpcErr := handler(source)
	s.reply(ResponseMessage{Jsonrpc: "2.0", ID: msg.ID, Result: result, Error: rpcErr})
}

func sourceOf(params interface{}) (string, *Error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	var p SourceParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if p.Source == "" {
		return "", &Error{Code: CodeInvalidParams, Message: "source is required"}
	}
	return p.Source, nil
}

func (s *Server) compile(source string) (interface{}, *Error) {
	value, err := s.worker.Do(s.timeout, func(e *fizz.Engine) (interface{}, error) {
		return e.CompileToBytecode(source)
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return CompileResult{Bytecode: base64.StdEncoding.EncodeToString(value.([]byte))}, nil
}

func (s *Server) eval(source string) (interface{}, *Error) {
	value, err := s.worker.Do(s.timeout, func(e *fizz.Engine) (interface{}, error) {
		v, err := e.EvalValue(source)
		if err != nil {
			return nil, err
		}
		return e.Render(v), nil
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return EvalResult{Value: value.(string)}, nil
}

func rpcError(err error) *Error {
	if errors.Is(err, ErrTimeout) {
		return &Error{Code: CodeEvalTimeout, Message: err.Error()}
	}
	return &Error{Code: CodeEvalFailed, Message: err.Error()}
}

// reply writes a single framed response. Writes are serialized so the
// worker and the read loop cannot interleave frames.
func (s *Server) reply(resp ResponseMessage) {
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal response: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.out, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		log.Errorf("write header: %v", err)
		return
	}
	if _, err := s.out.Write(payload); err != nil {
		log.Errorf("write payload: %v", err)
	}
}
