// Package monitor runs the polling loop that keeps the canonical device set
// current, and carries out explicit user actions against the bridge.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.olrik.dev/adbwatch/internal/device"
	"go.olrik.dev/adbwatch/internal/history"
)

// State of the polling loop.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateError   State = "error"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 3 * time.Second

// ErrStopped is returned by actions issued after Stop.
var ErrStopped = errors.New("monitor stopped")

// Bridge is the subset of the adb client used by the monitor.
type Bridge interface {
	device.PropertyReader

	ListDevices(ctx context.Context) ([]device.Observation, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context, address string) error
	Pair(ctx context.Context, address, code string) error
	EnableTCPIP(ctx context.Context, deviceID string, port int) error

	ReverseList(ctx context.Context, deviceID string) ([]device.PortForward, error)
	ReverseAdd(ctx context.Context, deviceID string, localPort, remotePort int) error
	ReverseRemove(ctx context.Context, deviceID string, localPort int) error
	ReverseRemoveAll(ctx context.Context, deviceID string) error
	ForwardList(ctx context.Context, deviceID string) ([]device.PortForward, error)
	ForwardAdd(ctx context.Context, deviceID string, localPort, remotePort int) error
	ForwardRemove(ctx context.Context, deviceID string, localPort int) error

	Screenshot(ctx context.Context, deviceID string) ([]byte, error)
	Reboot(ctx context.Context, deviceID, mode string) error
	InputText(ctx context.Context, deviceID, text string) error
	InputKeyEvent(ctx context.Context, deviceID string, keyCode int) error
}

// History is the identity store used by the monitor.
type History interface {
	device.HistoryLookup

	All() []history.Record
	Touch(sightings ...history.Record) error
	SetCustomName(serial, name string) error
	Remove(serial string) (bool, error)
}

// Snapshot is a read-only copy of the published monitor state.
type Snapshot struct {
	State     State           `json:"state"`
	Devices   []device.Device `json:"devices"`
	Error     string          `json:"error,omitempty"`
	Err       error           `json:"-"`
	UpdatedAt time.Time       `json:"updated_at"`
	Cycles    uint64          `json:"cycles"`
}

// Device returns the published device matching target.
func (s Snapshot) Device(target string) (device.Device, bool) {
	return device.Find(s.Devices, target)
}

func (s Snapshot) clone() Snapshot {
	devices := make([]device.Device, len(s.Devices))
	for i, d := range s.Devices {
		devices[i] = d.Clone()
	}
	s.Devices = devices
	return s
}

// Config configures a Monitor.
type Config struct {
	Bridge  Bridge
	History History

	Interval         time.Duration
	MaxConcurrent    int
	DefaultTCPIPPort int
	Logger           *slog.Logger

	// Now is used for history timestamps. Defaults to time.Now.
	Now func() time.Time

	// Suppressed, when set, is consulted before every scheduled cycle. A
	// true result skips the tick. Explicit refreshes are never suppressed.
	Suppressed func() bool
}

// Monitor polls the bridge and publishes the reconciled device set. At most
// one cycle runs at a time; ticks and refreshes arriving during a cycle are
// dropped.
type Monitor struct {
	bridge   Bridge
	history  History
	enricher *device.Enricher
	logger   *slog.Logger
	now      func() time.Time
	tcpPort  int

	suppressed func() bool

	polling atomic.Bool
	started atomic.Bool
	stopped atomic.Bool

	stateMu  sync.RWMutex
	snapshot Snapshot

	subscribersMu sync.RWMutex
	subscribers   []func(previous, current Snapshot)

	intervalMu sync.Mutex
	interval   time.Duration
	resetCh    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor. It does not poll until Start or Refresh is called.
func New(config Config) *Monitor {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.DefaultTCPIPPort == 0 {
		config.DefaultTCPIPPort = 5555
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	logger := config.Logger.With("component", "monitor")
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		bridge:     config.Bridge,
		history:    config.History,
		enricher:   device.NewEnricher(config.Bridge, config.MaxConcurrent, config.Logger),
		logger:     logger,
		now:        config.Now,
		tcpPort:    config.DefaultTCPIPPort,
		suppressed: config.Suppressed,
		snapshot:   Snapshot{State: StateIdle, Devices: []device.Device{}},
		interval:   config.Interval,
		resetCh:    make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the polling loop. The first cycle runs immediately.
func (m *Monitor) Start() {
	if m.stopped.Load() || !m.started.CompareAndSwap(false, true) {
		return
	}
	m.wg.Add(1)
	go m.run()
	m.logger.Info("Device monitor started", "interval", m.Interval())
}

// Stop ends the polling loop without waiting for it. A cycle in flight
// finishes on its own adb timeouts, but its result is not published.
func (m *Monitor) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	m.cancel()
	m.logger.Info("Device monitor stopped")
}

// Wait blocks until the polling loop has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Interval returns the current poll period.
func (m *Monitor) Interval() time.Duration {
	m.intervalMu.Lock()
	defer m.intervalMu.Unlock()
	return m.interval
}

// SetInterval changes the poll period of a running loop.
func (m *Monitor) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.intervalMu.Lock()
	changed := m.interval != interval
	m.interval = interval
	m.intervalMu.Unlock()

	if changed {
		select {
		case m.resetCh <- struct{}{}:
		default:
		}
		m.logger.Info("Poll interval changed", "interval", interval)
	}
}

func (m *Monitor) run() {
	defer m.wg.Done()

	m.runCycle()

	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.resetCh:
			ticker.Reset(m.Interval())
		case <-ticker.C:
			if m.suppressed != nil && m.suppressed() {
				m.logger.Debug("Polling suppressed, skipping cycle")
				continue
			}
			m.runCycle()
		}
	}
}

// Refresh runs one cycle now in the calling goroutine. It returns false
// without doing anything when a cycle is already in flight or the monitor
// is stopped.
func (m *Monitor) Refresh() bool {
	return m.runCycle()
}

// Polling reports whether a cycle is in flight.
func (m *Monitor) Polling() bool {
	return m.polling.Load()
}

func (m *Monitor) runCycle() bool {
	if m.stopped.Load() {
		return false
	}
	if !m.polling.CompareAndSwap(false, true) {
		m.logger.Debug("Cycle already in flight, skipping")
		return false
	}
	defer m.polling.Store(false)

	m.stateMu.Lock()
	previous := m.snapshot
	m.snapshot.State = StatePolling
	m.stateMu.Unlock()

	// adb calls are bounded by their own timeouts, not by Stop.
	ctx := context.WithoutCancel(m.ctx)
	start := time.Now()

	devices, updates, err := m.poll(ctx, previous.Devices)

	if m.stopped.Load() {
		m.logger.Debug("Monitor stopped during cycle, discarding result")
		m.stateMu.Lock()
		m.snapshot.State = previous.State
		m.stateMu.Unlock()
		return true
	}

	m.stateMu.Lock()
	next := m.snapshot
	next.Cycles++
	next.UpdatedAt = m.now()
	if err != nil {
		next.State = StateError
		next.Err = err
		next.Error = err.Error()
	} else {
		next.State = StateIdle
		next.Err = nil
		next.Error = ""
		next.Devices = devices
	}
	m.snapshot = next
	m.stateMu.Unlock()

	if err != nil {
		m.logger.Warn("Device poll failed", "error", err)
	} else {
		if len(updates) > 0 && m.history != nil {
			if herr := m.history.Touch(updates...); herr != nil {
				m.logger.Warn("Failed to persist device history", "error", herr)
			}
		}
		m.logger.Debug("Device poll finished",
			"devices", len(devices),
			"duration", time.Since(start).Round(time.Millisecond))
	}

	m.notifySubscribers(previous.clone(), next.clone())
	return true
}

func (m *Monitor) poll(ctx context.Context, previous []device.Device) ([]device.Device, []history.Record, error) {
	observations, err := m.bridge.ListDevices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list devices: %w", err)
	}

	observations = m.enricher.EnrichAll(ctx, observations)

	var lookup device.HistoryLookup
	if m.history != nil {
		lookup = m.history
	}
	result := device.Reconcile(observations, previous, lookup, m.now())
	return result.Devices, result.HistoryUpdates, nil
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.snapshot.clone()
}

// Subscribe registers a callback run after every published cycle, with the
// snapshot before and after the cycle.
func (m *Monitor) Subscribe(callback func(previous, current Snapshot)) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	m.subscribers = append(m.subscribers, callback)
}

func (m *Monitor) notifySubscribers(previous, current Snapshot) {
	m.subscribersMu.RLock()
	subscribers := make([]func(previous, current Snapshot), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.subscribersMu.RUnlock()

	for _, sub := range subscribers {
		sub(previous, current)
	}
}

// patch applies fn to every published device matching serial.
func (m *Monitor) patch(serial string, fn func(*device.Device)) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	devices := make([]device.Device, len(m.snapshot.Devices))
	for i, d := range m.snapshot.Devices {
		d = d.Clone()
		if d.PersistentSerial == serial {
			fn(&d)
		}
		devices[i] = d
	}
	device.SortByDisplayName(devices)
	m.snapshot.Devices = devices
}
