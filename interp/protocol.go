package interp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pypod/pypod/hostfunc"
)

// Stderr carries three kinds of traffic from the guest, framed with NUL
// sentinels so they cannot collide with ordinary program output:
//
//	\x00PYPOD_READY\x00              session loop is up
//	\x00PYPOD_DONE:<seq>\x00         command <seq> finished
//	\x00PYPOD_ERROR:<seq>:<msg>\x00  command <seq> raised
//	\x00PYPOD:{json}\x00             host function call request
//
// Completion frames echo the sequence id of the command they answer. A
// command abandoned on timeout leaves the guest still executing; its late
// completion carries the old id and is discarded instead of being attributed
// to the next command.
//
// Anything between sentinels is real stderr text and is forwarded, in
// emission order, at the next sentinel boundary.
const (
	readySignal = "\x00PYPOD_READY\x00"
	donePrefix  = "\x00PYPOD_DONE:"
	errorPrefix = "\x00PYPOD_ERROR:"
	callPrefix  = "\x00PYPOD:"
	frameSuffix = "\x00"
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// protocol intercepts the guest's stderr stream, dispatches host calls, and
// signals command completion. Responses go back over the guest's stdin.
type protocol struct {
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter

	buf      bytes.Buffer
	stderrCB func(string)

	readyCh chan struct{}
	doneCh  chan error
	ready   bool
	expect  uint64

	mu      sync.Mutex
	writeMu sync.Mutex
}

func newProtocol(registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *protocol {
	return &protocol{
		registry:    registry,
		stdinWriter: stdinWriter,
		readyCh:     make(chan struct{}),
		doneCh:      make(chan error, 1),
	}
}

func (p *protocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for p.step() {
	}

	return len(data), nil
}

// step consumes at most one complete frame from the buffer. Text preceding
// the frame is flushed to the stderr callback first. Returns false when no
// complete frame remains; partial frames stay buffered for the next write.
func (p *protocol) step() bool {
	content := p.buf.String()

	idx, kind := nextFrame(content)
	if kind == frameNone {
		return false
	}

	p.flushStderr(content[:idx])
	rest := content[idx:]

	switch kind {
	case frameReady:
		p.consume(rest[len(readySignal):])
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
		return true

	case frameDone:
		payload, remaining, ok := extractFrame(rest, donePrefix)
		if !ok {
			p.consume(rest)
			return false
		}
		p.consume(remaining)
		if seq, err := strconv.ParseUint(payload, 10, 64); err == nil {
			p.settle(seq, nil)
		}
		return true

	case frameError:
		payload, remaining, ok := extractFrame(rest, errorPrefix)
		if !ok {
			p.consume(rest)
			return false
		}
		p.consume(remaining)
		seqStr, msg, found := strings.Cut(payload, ":")
		if !found {
			return true
		}
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			p.settle(seq, errors.New(msg))
		}
		return true

	case frameCall:
		payload, remaining, ok := extractFrame(rest, callPrefix)
		if !ok {
			p.consume(rest)
			return false
		}
		p.consume(remaining)
		p.handleCall(payload)
		return true
	}

	return false
}

type frameKind int

const (
	frameNone frameKind = iota
	frameReady
	frameDone
	frameError
	frameCall
)

// nextFrame finds the earliest sentinel in content. Error and call frames
// share the "\x00PYPOD" prefix with ready/done, so the longest-match order
// matters: signals are matched before the bare call prefix.
func nextFrame(content string) (int, frameKind) {
	best, kind := -1, frameNone
	consider := func(idx int, k frameKind) {
		if idx != -1 && (best == -1 || idx < best) {
			best, kind = idx, k
		}
	}
	consider(strings.Index(content, readySignal), frameReady)
	consider(strings.Index(content, donePrefix), frameDone)
	consider(strings.Index(content, errorPrefix), frameError)
	consider(indexCallPrefix(content), frameCall)
	return best, kind
}

// indexCallPrefix finds "\x00PYPOD:" occurrences that are not the start of an
// error frame ("\x00PYPOD_ERROR:" does not contain the call prefix, so a
// plain index suffices; kept separate for clarity at the call site).
func indexCallPrefix(content string) int {
	return strings.Index(content, callPrefix)
}

// extractFrame pulls the payload of a frame starting at offset 0 of content.
// Returns ok=false when the closing sentinel has not arrived yet.
func extractFrame(content, prefix string) (payload, remaining string, ok bool) {
	body := content[len(prefix):]
	end := strings.Index(body, frameSuffix)
	if end == -1 {
		return "", "", false
	}
	return body[:end], body[end+len(frameSuffix):], true
}

func (p *protocol) consume(remaining string) {
	p.buf.Reset()
	p.buf.WriteString(remaining)
}

func (p *protocol) flushStderr(text string) {
	if text == "" || p.stderrCB == nil {
		return
	}
	p.stderrCB(text)
}

// settle delivers a completion for the command the session is waiting on.
// Completions echoing a different sequence id belong to a command that was
// abandoned on timeout and are dropped.
func (p *protocol) settle(seq uint64, err error) {
	if seq != p.expect {
		return
	}
	select {
	case p.doneCh <- err:
	default:
	}
}

// handleCall executes the requested host function and responds over stdin.
// Execution happens in a goroutine: the guest is still blocked inside its
// stderr write when the call arrives, and the stdin pipe write would
// deadlock if issued from this stack.
func (p *protocol) handleCall(payload string) {
	var req callRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		go p.respond(callResponse{Error: "invalid call format"})
		return
	}

	go func() {
		result, err := p.registry.Call(context.Background(), req.Fn, req.Args)
		if err != nil {
			p.respond(callResponse{Error: err.Error()})
			return
		}
		p.respond(callResponse{Data: result})
	}()
}

func (p *protocol) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinWriter.Write(append(data, '\n'))
}

func (p *protocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *protocol) Done() <-chan error {
	return p.doneCh
}

// BeginExec arms the protocol for command seq: any buffered completion is
// drained and only frames echoing seq will settle the wait.
func (p *protocol) BeginExec(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.expect = seq
	select {
	case <-p.doneCh:
	default:
	}
}

func (p *protocol) onStderr(fn func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stderrCB = fn
}
