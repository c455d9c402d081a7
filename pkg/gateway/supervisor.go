package gateway

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wombatinua/meshcore-ai/pkg/directory"
)

// ConnState is the supervisor's view of the device session.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Supervisor keeps the device connection alive: it connects, warms the peer
// directory after each successful connect, and applies a bounded reconnect
// policy with a watchdog. A zero reconnect delay makes failures terminal.
type Supervisor struct {
	device     DeviceLink
	dir        *directory.Directory
	bot        *Bot
	devicePath string
	delay      time.Duration
	log        *slog.Logger

	mu             sync.Mutex
	state          ConnState
	reconnectTimer *time.Timer
	watchdogTimer  *time.Timer
	loggedMissing  bool

	ctx context.Context
}

func NewSupervisor(device DeviceLink, dir *directory.Directory, bot *Bot,
	devicePath string, delay time.Duration, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		device:     device,
		dir:        dir,
		bot:        bot,
		devicePath: devicePath,
		delay:      delay,
		log:        log,
		state:      StateDisconnected,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start performs the initial connect attempt. Reconnects after that happen
// via timers and the pipeline's disconnect notifications.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.connect()
}

// OnDisconnected is called by the pipeline when the device session drops.
func (s *Supervisor) OnDisconnected() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.scheduleReconnect()
}

// OnError is called by the pipeline on a device error event.
func (s *Supervisor) OnError(err error) {
	s.mu.Lock()
	alreadyDown := s.state == StateDisconnected
	s.state = StateDisconnected
	s.mu.Unlock()
	if !alreadyDown {
		s.log.Warn("device fault, will reconnect", "error", err)
	}
	s.scheduleReconnect()
}

func (s *Supervisor) connect() {
	s.mu.Lock()
	if s.ctx != nil && s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.state = StateConnecting
	s.mu.Unlock()

	// A device file path that is not present means the radio is unplugged;
	// probing is cheaper than a connect timeout.
	if filepath.IsAbs(s.devicePath) {
		if _, err := os.Stat(s.devicePath); err != nil {
			s.mu.Lock()
			s.state = StateDisconnected
			logIt := !s.loggedMissing
			s.loggedMissing = true
			s.mu.Unlock()
			if logIt {
				s.log.Warn("device path not present, waiting for it to appear",
					"path", s.devicePath)
			}
			s.scheduleReconnect()
			return
		}
	}

	s.startWatchdog()

	if err := s.device.Connect(ctx); err != nil {
		s.log.Error("device connect failed", "error", err)
		s.mu.Lock()
		s.state = StateDisconnected
		s.stopWatchdogLocked()
		s.mu.Unlock()
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	s.state = StateConnected
	s.loggedMissing = false
	s.stopWatchdogLocked()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()

	s.warmUp()
}

// warmUp runs the idempotent post-connect actions. Failures are logged and
// do not revert the connected state.
func (s *Supervisor) warmUp() {
	contacts, err := s.device.GetContacts()
	if err != nil {
		s.log.Warn("failed to warm peer directory from device", "error", err)
	} else {
		s.dir.BulkUpsert(contacts)
		s.log.Info("peer directory warmed", "peers", len(contacts))
	}

	if self, err := s.device.GetSelfInfo(); err != nil {
		s.log.Warn("failed to read self info", "error", err)
	} else if s.bot != nil {
		s.bot.SetSelfName(self.Name)
	}

	if err := s.device.SyncDeviceTime(); err != nil {
		s.log.Warn("failed to sync device clock", "error", err)
	}
	if err := s.device.SendZeroHopAdvert(); err != nil {
		s.log.Warn("failed to send startup advert", "error", err)
	}
}

// scheduleReconnect arms the reconnect timer. Only one timer may be pending;
// further requests while one is armed are no-ops. With no delay configured
// the failure is terminal.
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delay <= 0 {
		s.log.Error("no reconnect delay configured, staying disconnected")
		return
	}
	if s.reconnectTimer != nil {
		return
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}
	s.reconnectTimer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.reconnectTimer = nil
		s.mu.Unlock()
		s.connect()
	})
}

// startWatchdog forces a reconnect if the connect attempt neither succeeds
// nor fails within the configured delay.
func (s *Supervisor) startWatchdog() {
	if s.delay <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchdogLocked()
	s.watchdogTimer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		// The device link may have come up while the state update was
		// still in flight; only a link that is really down counts as stuck.
		stuck := s.state != StateConnected && !s.device.IsConnected()
		if stuck {
			s.state = StateDisconnected
		}
		s.watchdogTimer = nil
		s.mu.Unlock()
		if stuck {
			s.log.Warn("connect attempt stalled, forcing reconnect")
			s.scheduleReconnect()
		}
	})
}

func (s *Supervisor) stopWatchdogLocked() {
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
		s.watchdogTimer = nil
	}
}
