package main

import (
	"bufio"
	"io"
	"sync"
)

// consoleHost bridges the evaluator to a terminal: output goes straight to
// the writer, and input lines are pumped from the reader into a queue so the
// evaluator's non-blocking poll can pick them up.
type consoleHost struct {
	mu    sync.Mutex
	out   io.Writer
	lines chan string
}

func newConsoleHost(out io.Writer, in io.Reader) *consoleHost {
	h := &consoleHost{out: out, lines: make(chan string, 64)}
	if in != nil {
		go func() {
			sc := bufio.NewScanner(in)
			for sc.Scan() {
				h.lines <- sc.Text()
			}
			close(h.lines)
		}()
	}
	return h
}

func (h *consoleHost) SendOutput(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	io.WriteString(h.out, text)
}

func (h *consoleHost) TryRequestInput() (string, bool) {
	select {
	case line, ok := <-h.lines:
		if !ok {
			return "", false
		}
		return line, true
	default:
		return "", false
	}
}
