package server

import (
	"errors"
	"fmt"
	"time"

	fizz "github.com/fizzlang/fizz/pkg/embed"
)

// ErrTimeout is returned by Worker.Do when a request exceeds its
// deadline. The engine goroutine keeps running the abandoned request;
// later requests queue behind it.
var ErrTimeout = errors.New("evaluation timed out")

// workRequest is a unit of work to run on the engine goroutine.
type workRequest struct {
	fn   func(*fizz.Engine) (interface{}, error)
	done chan workResult
}

type workResult struct {
	value interface{}
	err   error
}

// Worker serializes all engine access through a single goroutine.
// The interpreter is single-threaded, so every request handler must
// go through the worker to avoid data races.
type Worker struct {
	engine   *fizz.Engine
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker around the engine and starts the
// processing goroutine.
func NewWorker(engine *fizz.Engine) *Worker {
	w := &Worker{
		engine:   engine,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the engine, recovering from panics.
func (w *Worker) execute(fn func(*fizz.Engine) (interface{}, error)) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value, result.err = fn(w.engine)
	}()
	return result
}

// Do submits a function for execution on the engine goroutine and
// blocks until it completes or the timeout elapses. A timeout abandons
// only the wait: the engine goroutine finishes the request on its own
// and the buffered done channel absorbs the late result.
func (w *Worker) Do(timeout time.Duration, fn func(*fizz.Engine) (interface{}, error)) (interface{}, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	w.requests <- req

	if timeout <= 0 {
		result := <-req.done
		return result.value, result.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}

// Engine returns the underlying engine. Callers must not touch it
// while the worker is live; it exists for setup before Run and for
// teardown after Stop.
func (w *Worker) Engine() *fizz.Engine {
	return w.engine
}
