package command

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Telnet protocol bytes.
const (
	telnetIAC  = 255
	telnetSB   = 250
	telnetSE   = 240
	telnetWILL = 251
	telnetDONT = 254
)

// TelnetServer accepts console sessions over TCP. Each session feeds the
// Console under its own source id and receives every console line.
type TelnetServer struct {
	Addr    string
	Banner  string
	console *Console

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]net.Conn
}

// NewTelnetServer creates a server feeding console.
func NewTelnetServer(addr string, console *Console) *TelnetServer {
	return &TelnetServer{
		Addr:     addr,
		console:  console,
		sessions: make(map[string]net.Conn),
	}
}

// Start listens and serves until ctx is cancelled or Shutdown is called.
func (t *TelnetServer) Start(ctx context.Context) error {
	log.Printf("telnet: listening on %s", t.Addr)

	l, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.Shutdown()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go t.handleConnection(ctx, conn)
	}
}

// ListenAddr returns the bound address, or "" before Start.
func (t *TelnetServer) ListenAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Sessions returns the number of connected sessions.
func (t *TelnetServer) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *TelnetServer) handleConnection(ctx context.Context, c net.Conn) {
	id := "telnet-" + uuid.NewString()
	log.Printf("telnet: session %s from %s", id, c.RemoteAddr())

	t.mu.Lock()
	t.sessions[id] = c
	t.mu.Unlock()
	t.console.AddWriter(id, &deadlineWriter{conn: c, timeout: time.Second})

	defer func() {
		t.console.RemoveWriter(id)
		t.mu.Lock()
		delete(t.sessions, id)
		t.mu.Unlock()
		c.Close()
		log.Printf("telnet: session %s closed", id)
	}()

	if t.Banner != "" {
		c.Write([]byte(t.Banner + "\r\n"))
	}
	ReadInto(ctx, id, &iacFilter{r: c}, t.console.Inputs())
}

// Shutdown closes the listener and every session.
func (t *TelnetServer) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.sessions {
		c.Close()
	}
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}

// deadlineWriter keeps a stalled client from blocking console output.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.Write(p)
}

// iacFilter strips telnet negotiation sequences from a byte stream.
type iacFilter struct {
	r     interface{ Read([]byte) (int, error) }
	state int // 0 data, 1 after IAC, 2 option byte, 3 subnegotiation, 4 IAC inside subnegotiation
}

func (f *iacFilter) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	out := 0
	for i := 0; i < n; i++ {
		b := p[i]
		switch f.state {
		case 0:
			if b == telnetIAC {
				f.state = 1
				continue
			}
			p[out] = b
			out++
		case 1:
			switch {
			case b == telnetIAC: // escaped 255
				p[out] = b
				out++
				f.state = 0
			case b == telnetSB:
				f.state = 3
			case b >= telnetWILL && b <= telnetDONT:
				f.state = 2
			default:
				f.state = 0
			}
		case 2:
			f.state = 0
		case 3:
			if b == telnetIAC {
				f.state = 4
			}
		case 4:
			if b == telnetSE {
				f.state = 0
			} else {
				f.state = 3
			}
		}
	}
	return out, err
}
