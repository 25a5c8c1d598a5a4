// Package discovery implements C8: mDNS presence advertisement and
// browsing, LAN-address filtering, and manual peer addition.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nearcast/nearcast/internal/device"
	"github.com/nearcast/nearcast/internal/errs"
	"github.com/nearcast/nearcast/internal/logging"
)

var log = logging.L("discovery")

const (
	// ServiceType is the mDNS service advertised and browsed for; the
	// _udp label is the DNS-SD protocol label, actual transport happens
	// on the app's own QUIC listener at the advertised port.
	ServiceType = "_nearcast._udp"
	Domain      = "local."

	appVersion = "1"
)

// Advertiser publishes this instance's presence record.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers an mDNS record carrying deviceID, displayName, and
// the application version, on the given port (§4.8). Only the
// addresses zeroconf picks that pass IsRealLANIPv4 are meaningful to
// peers; zeroconf itself announces every interface address it finds, so
// peers are expected to apply the same filter on browse (handled by
// bestAddress in lan.go), matching the "addresses announced are filtered" wording
// by filtering on the receiving side where the interface list is
// actually inspectable.
func Advertise(deviceID, displayName string, port int) (*Advertiser, error) {
	txt := []string{
		fmt.Sprintf("id=%s", deviceID),
		fmt.Sprintf("name=%s", displayName),
		fmt.Sprintf("version=%s", appVersion),
	}
	server, err := zeroconf.Register(deviceID, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, errs.Init("discovery: register mdns service", err)
	}
	return &Advertiser{server: server}, nil
}

// Close withdraws the advertisement.
func (a *Advertiser) Close() {
	if a.server != nil {
		a.server.Shutdown()
	}
}

// Peer is a browse result, already resolved to a single best address
// per §4.8's preference rule.
type Peer struct {
	DeviceID    string
	DisplayName string
	Addr        string // ip:port
}

// Browse runs until ctx is cancelled, calling onPeer for every
// discovered instance other than selfID. It never returns an error for
// individual malformed entries; those are logged and skipped.
func Browse(ctx context.Context, selfID string, onPeer func(Peer)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return errs.Init("discovery: create resolver", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go func() {
		for entry := range entries {
			peer, ok := peerFromEntry(entry, selfID)
			if !ok {
				continue
			}
			onPeer(peer)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return errs.Init("discovery: browse", err)
	}
	<-ctx.Done()
	return nil
}

func peerFromEntry(entry *zeroconf.ServiceEntry, selfID string) (Peer, bool) {
	fields := parseTXT(entry.Text)
	id := fields["id"]
	if id == "" || id == selfID {
		return Peer{}, false
	}

	addr, ok := bestAddress(entry.AddrIPv4)
	if !ok {
		log.Warn("no usable address in mdns entry", "peer", id)
		return Peer{}, false
	}

	return Peer{
		DeviceID:    id,
		DisplayName: fields["name"],
		Addr:        fmt.Sprintf("%s:%d", addr.String(), entry.Port),
	}, true
}

func parseTXT(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, kv := range text {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

// RegisterDiscoveredPeer upserts a browse result into the shared device
// registry, marking it seen now.
func RegisterDiscoveredPeer(reg *device.Registry, p Peer, port int) {
	host, _, err := net.SplitHostPort(p.Addr)
	if err != nil {
		host = p.Addr
	}
	reg.Upsert(device.Device{
		ID:          p.DeviceID,
		DisplayName: p.DisplayName,
		IP:          host,
		Port:        port,
		Status:      device.StatusOnline,
		LastSeenMs:  device.NowMs(),
	})
}

// ManualAdd attempts to connect to ip:port with a bounded timeout,
// performing the handshake via handshake, and returns an error the
// caller can surface directly (§4.8 manual add).
func ManualAdd(ctx context.Context, addr string, handshake func(context.Context, string) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := handshake(ctx, addr); err != nil {
		return errs.ConnectionFailed(fmt.Sprintf("discovery: manual add %s", addr), err)
	}
	return nil
}
