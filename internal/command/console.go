package command

import (
	"io"
	"log"
	"sync"
)

// Input is a chunk of raw bytes read by a source goroutine. Closed marks
// the end of a source (e.g. a telnet session hanging up).
type Input struct {
	Source string
	Data   []byte
	Closed bool
}

// maxChunksPerLoop bounds how much input one Loop call processes.
const maxChunksPerLoop = 16

// Console merges input sources and fans output back to them. Sources run
// on their own goroutines and only hand bytes over the Inputs channel;
// line editing and dispatch happen in Loop on the driving loop.
type Console struct {
	router  *Router
	in      chan Input
	editors map[string]*LineEditor

	// OnIdleLine is called for an empty input line.
	OnIdleLine func(source string)
	// OnLine, if set, sees every non-empty line before dispatch.
	OnLine func(source, line string)

	mu      sync.Mutex
	writers map[string]io.Writer
}

// NewConsole creates a Console dispatching through router.
func NewConsole(router *Router) *Console {
	return &Console{
		router:  router,
		in:      make(chan Input, 64),
		editors: make(map[string]*LineEditor),
		writers: make(map[string]io.Writer),
	}
}

// Inputs is the channel sources send on.
func (c *Console) Inputs() chan<- Input { return c.in }

// AddWriter registers an output sink under name.
func (c *Console) AddWriter(name string, w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writers[name] = w
}

// RemoveWriter unregisters an output sink.
func (c *Console) RemoveWriter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.writers, name)
}

// Println writes line to every sink. Failing sinks are dropped.
func (c *Console) Println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := []byte(line + "\r\n")
	for name, w := range c.writers {
		if _, err := w.Write(b); err != nil {
			log.Printf("console: write to %s: %v", name, err)
			delete(c.writers, name)
		}
	}
}

// Loop processes pending input without blocking.
func (c *Console) Loop() {
	for i := 0; i < maxChunksPerLoop; i++ {
		select {
		case in := <-c.in:
			c.feed(in)
		default:
			return
		}
	}
}

// Submit dispatches a complete line, bypassing the line editor.
func (c *Console) Submit(source, line string) {
	c.handleLine(source, line)
}

func (c *Console) feed(in Input) {
	if in.Closed {
		delete(c.editors, in.Source)
		return
	}
	ed, ok := c.editors[in.Source]
	if !ok {
		ed = &LineEditor{}
		c.editors[in.Source] = ed
	}
	for _, b := range in.Data {
		if line, done := ed.Feed(b); done {
			c.handleLine(in.Source, line)
		}
	}
}

func (c *Console) handleLine(source, line string) {
	if line == "" {
		if c.OnIdleLine != nil {
			c.OnIdleLine(source)
		}
		return
	}
	if c.OnLine != nil {
		c.OnLine(source, line)
	}
	c.router.Dispatch(line)
}
