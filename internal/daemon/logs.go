package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LogBroadcaster fans daemon log lines out to `adbwatch logs` clients and
// keeps the most recent lines for replay.
type LogBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	history []string
	maxHist int
}

// NewLogBroadcaster creates a broadcaster keeping historySize lines.
func NewLogBroadcaster(historySize int) *LogBroadcaster {
	if historySize <= 0 {
		historySize = 1000
	}
	return &LogBroadcaster{
		clients: make(map[chan string]struct{}),
		history: make([]string, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe adds a client without history replay.
func (lb *LogBroadcaster) Subscribe() chan string {
	ch, _ := lb.SubscribeWithHistory(0)
	return ch
}

// SubscribeWithHistory adds a client and returns up to historyLines of the
// most recent lines. History is returned separately so it never competes
// with live lines for channel capacity.
func (lb *LogBroadcaster) SubscribeWithHistory(historyLines int) (chan string, []string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	ch := make(chan string, 100)
	lb.clients[ch] = struct{}{}

	if historyLines <= 0 || len(lb.history) == 0 {
		return ch, nil
	}
	start := max(len(lb.history)-historyLines, 0)
	return ch, append([]string(nil), lb.history[start:]...)
}

// Unsubscribe removes a client and closes its channel.
func (lb *LogBroadcaster) Unsubscribe(ch chan string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if _, ok := lb.clients[ch]; !ok {
		return
	}
	delete(lb.clients, ch)
	close(ch)
}

// Broadcast records message and sends it to every client. Clients whose
// buffer is full miss the message.
func (lb *LogBroadcaster) Broadcast(message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.history) >= lb.maxHist {
		lb.history = append(lb.history[:0], lb.history[1:]...)
	}
	lb.history = append(lb.history, message)

	for ch := range lb.clients {
		select {
		case ch <- message:
		default:
		}
	}
}

// LogWriter is an io.Writer that broadcasts log messages
type LogWriter struct {
	broadcaster *LogBroadcaster
}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	lw.broadcaster.Broadcast(string(p))
	return len(p), nil
}

// setupLogging sends the daemon's slog output to stderr and to log clients.
func (d *Daemon) setupLogging() {
	multiWriter := io.MultiWriter(os.Stderr, &LogWriter{broadcaster: d.logBroadcast})

	handler := tint.NewHandler(multiWriter, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.DateTime,
	})

	slog.SetDefault(slog.New(handler))
}

// handleLogs streams daemon logs to conn until the client disconnects.
func (d *Daemon) handleLogs(conn net.Conn, showHistory bool, historyLines int) {
	defer conn.Close()

	if !showHistory {
		historyLines = 0
	}
	logChan, history := d.logBroadcast.SubscribeWithHistory(historyLines)
	defer d.logBroadcast.Unsubscribe(logChan)

	if _, err := conn.Write([]byte("Connected to adbwatch daemon logs. Press Ctrl+C to exit.\n")); err != nil {
		slog.Warn(fmt.Sprintf("Failed to send initial message to logs client: %v", err))
		return
	}
	for _, msg := range history {
		if _, err := conn.Write([]byte(msg)); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, conn)
		close(done)
	}()

	for {
		select {
		case logMsg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(logMsg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
