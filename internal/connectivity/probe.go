package connectivity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"fieldsync/internal/fieldsync"
)

// DefaultProbeURL answers 204 without a body.
const DefaultProbeURL = "https://clients3.google.com/generate_204"

// DefaultTimeout bounds a single reachability probe.
const DefaultTimeout = 5 * time.Second

// interfaceLister returns the host's network interfaces.
type interfaceLister func() ([]net.Interface, error)

// addrLister returns the addresses of one interface.
type addrLister func(net.Interface) ([]net.Addr, error)

// ProbeNetwork reports a link as connected when a non-loopback interface is
// up with an address, and the internet as reachable when the probe URL
// answers within the timeout. A link without WAN reads as offline.
type ProbeNetwork struct {
	client     *http.Client
	probeURL   string
	timeout    time.Duration
	interfaces interfaceLister
	addrs      addrLister
}

// NewProbeNetwork creates a probing Network.
func NewProbeNetwork(probeURL string, timeout time.Duration) *ProbeNetwork {
	if probeURL == "" {
		probeURL = DefaultProbeURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ProbeNetwork{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				// Captive portals redirect; treat that as unreachable.
				return http.ErrUseLastResponse
			},
		},
		probeURL:   probeURL,
		timeout:    timeout,
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// Status probes the link and then the internet.
func (p *ProbeNetwork) Status(ctx context.Context) fieldsync.NetworkStatus {
	var status fieldsync.NetworkStatus
	status.Connected = p.linkUp()
	if !status.Connected {
		return status
	}
	status.InternetReachable = p.reachable(ctx) == nil
	return status
}

func (p *ProbeNetwork) linkUp() bool {
	ifaces, err := p.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := p.addrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && !ipNet.IP.IsLinkLocalUnicast() {
				return true
			}
		}
	}
	return false
}

func (p *ProbeNetwork) reachable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.probeURL, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", p.probeURL, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("probing %s: unexpected status %d", p.probeURL, resp.StatusCode)
}

// StaticNetwork always reports the same status. "always" and "never"
// connectivity types use it for kiosk setups and airplane-mode testing.
type StaticNetwork struct {
	status fieldsync.NetworkStatus
}

// NewStaticNetwork returns a Network that is online when online is true.
func NewStaticNetwork(online bool) *StaticNetwork {
	return &StaticNetwork{status: fieldsync.NetworkStatus{Connected: online, InternetReachable: online}}
}

func (s *StaticNetwork) Status(context.Context) fieldsync.NetworkStatus {
	return s.status
}

var (
	_ fieldsync.Network = (*ProbeNetwork)(nil)
	_ fieldsync.Network = (*StaticNetwork)(nil)
)
