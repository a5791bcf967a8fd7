package netstate

import (
	"context"
	"net"
	"time"

	"github.com/koios/matrx-display/internal/mailbox"
	"go.uber.org/zap"
)

// Monitor polls the host's network interfaces and pushes a State whenever the
// observed phase changes
type Monitor struct {
	signal    *mailbox.Signal[State]
	logger    *zap.Logger
	iface     string
	interval  time.Duration
	retry     time.Duration
	lookup    func() ([]net.Interface, error)
	addresses func(net.Interface) ([]net.Addr, error)

	state State
}

// NewMonitor watches iface, or every non-loopback interface when iface is empty
func NewMonitor(signal *mailbox.Signal[State], iface string, interval, retry time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Monitor{
		signal:    signal,
		logger:    logger,
		iface:     iface,
		interval:  interval,
		retry:     retry,
		lookup:    net.Interfaces,
		addresses: func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
		state:     -1,
	}
}

// Run polls until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Network monitor started",
		zap.String("interface", m.iface),
		zap.Duration("interval", m.interval))

	m.push(Connecting)
	for {
		next := transition(m.state, m.observe())
		m.push(next)

		wait := m.interval
		if next == Disconnected || next == Failed {
			wait = m.retry
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if next == Disconnected || next == Failed {
			m.push(Connecting)
		}
	}
}

func (m *Monitor) push(s State) {
	if s == m.state {
		return
	}
	m.logger.Info("Connectivity changed",
		zap.Stringer("from", m.state),
		zap.Stringer("to", s))
	m.state = s
	m.signal.Signal(s)
}

// observe classifies the interfaces right now, without history
func (m *Monitor) observe() State {
	ifaces, err := m.lookup()
	if err != nil {
		m.logger.Error("Failed to list network interfaces", zap.Error(err))
		return Failed
	}

	best := Connecting
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if m.iface != "" && iface.Name != m.iface {
			continue
		}
		best = WaitingForAddress

		addrs, err := m.addresses(iface)
		if err != nil {
			m.logger.Warn("Failed to read interface addresses", zap.String("interface", iface.Name), zap.Error(err))
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLinkLocalUnicast() {
				return Ready
			}
		}
	}
	return best
}

// transition turns an observation into the next pushed state. Losing the link
// after being up is reported as Disconnected rather than Connecting.
func transition(prev, observed State) State {
	if prev.Up() && !observed.Up() && observed != Failed {
		return Disconnected
	}
	return observed
}

// Static reports Ready once, for hosts whose connectivity is managed elsewhere
func Static(signal *mailbox.Signal[State]) {
	signal.Signal(Ready)
}
