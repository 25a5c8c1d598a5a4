// Package command implements C12: the thin, serialisable command surface a
// UI layer calls into. Every operation takes a loosely-typed payload and
// returns a CommandResult, is safe to call concurrently from any goroutine,
// and never holds Service's lock across network or disk I/O (§4.12).
//
// Grounded on the teacher's internal/heartbeat command-dispatch shape
// (handlerRegistry + dispatchCommand timing wrapper) and internal/remote/
// tools' CommandResult/NewSuccessResult/NewErrorResult/GetPayload* pattern,
// not pkg/api — that package is an HTTP client to a central management
// server, which this peer-to-peer system has no equivalent of.
package command

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nearcast/nearcast/internal/config"
	"github.com/nearcast/nearcast/internal/connhandler"
	"github.com/nearcast/nearcast/internal/device"
	"github.com/nearcast/nearcast/internal/discovery"
	"github.com/nearcast/nearcast/internal/filetransfer"
	"github.com/nearcast/nearcast/internal/logging"
	"github.com/nearcast/nearcast/internal/sharer"
	"github.com/nearcast/nearcast/internal/transport"
	"github.com/nearcast/nearcast/internal/viewer"
	"github.com/nearcast/nearcast/internal/wire"
)

var log = logging.L("command")

// Command names, as named in spec §4.12.
const (
	CmdStartService    = "start_service"
	CmdStopService     = "stop_service"
	CmdGetDevices      = "get_devices"
	CmdAddManualDevice = "add_manual_device"
	CmdConnectToDevice = "connect_to_device"
	CmdDisconnect      = "disconnect"
	CmdGetSelfInfo     = "get_self_info"
	CmdGetSettings     = "get_settings"
	CmdSaveSettings    = "save_settings"
	CmdStartSharing    = "start_sharing"
	CmdStopSharing     = "stop_sharing"
	CmdRequestStream   = "request_stream"
	CmdStopViewing     = "stop_viewing"
	CmdGetStreamStats  = "get_stream_stats"
)

// CommandHandler processes one command's payload against a Service.
type CommandHandler func(s *Service, payload map[string]any) CommandResult

// handlerRegistry maps command names to their handlers, written once at
// init and read-only thereafter (mirrors the teacher's handlerRegistry).
var handlerRegistry = map[string]CommandHandler{
	CmdStartService:    (*Service).StartService,
	CmdStopService:     (*Service).StopService,
	CmdGetDevices:      (*Service).GetDevices,
	CmdAddManualDevice: (*Service).AddManualDevice,
	CmdConnectToDevice: (*Service).ConnectToDevice,
	CmdDisconnect:      (*Service).Disconnect,
	CmdGetSelfInfo:     (*Service).GetSelfInfo,
	CmdGetSettings:     (*Service).GetSettings,
	CmdSaveSettings:    (*Service).SaveSettings,
	CmdStartSharing:    (*Service).StartSharing,
	CmdStopSharing:     (*Service).StopSharing,
	CmdRequestStream:   (*Service).RequestStream,
	CmdStopViewing:     (*Service).StopViewing,
	CmdGetStreamStats:  (*Service).GetStreamStats,
}

// Dispatch looks up name in handlerRegistry and runs it, centralising
// duration measurement the same way the named operation methods do when
// called directly. Unknown names return a failed CommandResult rather than
// panicking, since name arrives from outside the process.
func Dispatch(s *Service, name string, payload map[string]any) CommandResult {
	handler, ok := handlerRegistry[name]
	if !ok {
		return errorResultf(0, "unknown command: %s", name)
	}
	start := time.Now()
	result := handler(s, payload)
	if result.DurationMs <= 0 {
		result.DurationMs = time.Since(start).Milliseconds()
	}
	return result
}

// Service is the live, process-wide state every command operates against:
// settings, the device/connection registries, and whichever of the
// sharing/viewing/discovery subsystems start_service has brought up (§9
// "Global singletons" — encoded here as lazily-populated fields guarded by
// mu, not package-level vars, so tests can run more than one Service).
type Service struct {
	mu sync.Mutex

	cfgPath  string
	settings *config.Settings
	selfID   string
	running  bool
	sharing  bool

	devices  *device.Registry
	viewers  *viewer.Registry
	endpoint *transport.Endpoint
	share    *sharer.Sharer
	handler  *connhandler.Handler
	files    *filetransfer.Manager

	advertiser   *discovery.Advertiser
	browseCancel context.CancelFunc
}

// New loads settings from cfgPath (or the default path if empty) and
// constructs a Service in the Idle state; start_service must still be
// called before any networked operation succeeds.
func New(cfgPath string) (*Service, error) {
	settings, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfgPath:  cfgPath,
		settings: settings,
		selfID:   device.NewID(),
		devices:  device.NewRegistry(),
		viewers:  viewer.NewRegistry(),
	}, nil
}

// StartService brings up the listener, discovery, and dispatch loops
// (`Idle -> Capturing`-adjacent "service" state, §9 state machines).
// Idempotent: calling it while already running is a no-op success.
func (s *Service) StartService(_ map[string]any) CommandResult {
	start := time.Now()
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return NewSuccessResult(map[string]any{"already_running": true}, time.Since(start).Milliseconds())
	}
	settings := s.settings
	selfID := s.selfID
	s.mu.Unlock()

	endpoint, err := transport.Listen(settings.BindAddr)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	sh, err := sharer.New(sharer.Config{
		FPS:            settings.FPS,
		InitialBitrate: config.QualityBitrate(settings.Quality),
		Adaptive:       true,
	})
	if err != nil {
		_ = endpoint.Close()
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	files := filetransfer.NewManager(endpoint, func(peerID string) (string, bool) {
		d, ok := s.devicesRef().Get(peerID)
		if !ok {
			return "", false
		}
		return d.IP, true
	}, func(t filetransfer.Transfer) {
		log.Debug("file transfer update", "file_id", t.FileID, "status", t.Status, "progress", t.Progress)
	})

	handler := connhandler.New(connhandler.Config{
		Self: connhandler.Self{
			DeviceID:    selfID,
			DisplayName: settings.DeviceName,
			Port:        bindPort(settings.BindAddr),
		},
		Devices:       s.devicesRef(),
		Endpoint:      endpoint,
		Sharer:        sh,
		Viewers:       s.viewersRef(),
		ViewerConfig:  viewerConfigFromSettings(settings),
		OnFileControl: files.HandleControl,
		OnFileStream:  files.HandleStream,
		OnConnected: func(d device.Device) {
			log.Info("peer connected", "peer", d.ID, "ip", d.IP)
		},
		OnDisconnected: func(deviceID string) {
			log.Info("peer disconnected", "peer", deviceID)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())

	adv, err := discovery.Advertise(selfID, settings.DeviceName, int(bindPort(settings.BindAddr)))
	if err != nil {
		log.Warn("mdns advertise failed, continuing without it", "error", err)
	}

	go acceptLoop(ctx, endpoint, handler)
	go func() {
		if err := discovery.Browse(ctx, selfID, func(p discovery.Peer) {
			discovery.RegisterDiscoveredPeer(s.devicesRef(), p, peerPort(p.Addr))
		}); err != nil {
			log.Warn("mdns browse ended", "error", err)
		}
	}()

	s.mu.Lock()
	s.endpoint = endpoint
	s.share = sh
	s.handler = handler
	s.files = files
	s.advertiser = adv
	s.browseCancel = cancel
	s.running = true
	s.mu.Unlock()

	return NewSuccessResult(map[string]any{"device_id": selfID}, time.Since(start).Milliseconds())
}

// StopService tears everything start_service brought up down, emptying
// the registries but preserving the Service cell itself (§9 invariant 5).
func (s *Service) StopService(_ map[string]any) CommandResult {
	start := time.Now()
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return NewSuccessResult(map[string]any{"already_stopped": true}, time.Since(start).Milliseconds())
	}
	adv, endpoint, share, cancel := s.advertiser, s.endpoint, s.share, s.browseCancel
	s.running = false
	s.sharing = false
	s.advertiser, s.endpoint, s.share, s.handler, s.files, s.browseCancel = nil, nil, nil, nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if adv != nil {
		adv.Close()
	}
	if share != nil {
		_ = share.Close()
	}
	if endpoint != nil {
		_ = endpoint.Close()
	}
	s.devices.Clear()

	return NewSuccessResult(map[string]any{"stopped": true}, time.Since(start).Milliseconds())
}

// GetDevices lists every known device, discovered or manually added.
func (s *Service) GetDevices(_ map[string]any) CommandResult {
	start := time.Now()
	return NewSuccessResult(s.devices.List(), time.Since(start).Milliseconds())
}

// AddManualDevice dials ip (payload key "ip", optional "port") directly,
// bypassing mDNS, bounded by discovery.ManualAdd's timeout (§4.8).
func (s *Service) AddManualDevice(payload map[string]any) CommandResult {
	start := time.Now()
	ip := GetPayloadString(payload, "ip", "")
	if ip == "" {
		return errorResultf(time.Since(start).Milliseconds(), "ip is required")
	}
	port := GetPayloadInt(payload, "port", int(bindPort(s.currentSettings().BindAddr)))
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	handler, ok := s.handlerRef()
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "service is not running")
	}

	err := discovery.ManualAdd(context.Background(), addr, func(ctx context.Context, addr string) error {
		return s.connectAddr(ctx, handler, addr, addr)
	})
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	return NewSuccessResult(map[string]any{"connected": addr}, time.Since(start).Milliseconds())
}

// ConnectToDevice dials a previously discovered device by id.
func (s *Service) ConnectToDevice(payload map[string]any) CommandResult {
	start := time.Now()
	id := GetPayloadString(payload, "id", "")
	if id == "" {
		return errorResultf(time.Since(start).Milliseconds(), "id is required")
	}
	d, ok := s.devices.Get(id)
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "unknown device: %s", id)
	}
	handler, ok := s.handlerRef()
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), transport.DialTimeout)
	defer cancel()
	addr := net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
	if err := s.connectAddr(ctx, handler, addr, id); err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	return NewSuccessResult(map[string]any{"connected": id}, time.Since(start).Milliseconds())
}

// Disconnect closes the connection for every device id in payload["ids"].
// Closing a Connection's underlying QUIC connection unblocks the
// connection handler's control loop on its next read, which runs the same
// cleanup an ordinary peer-initiated disconnect would (§4.11).
func (s *Service) Disconnect(payload map[string]any) CommandResult {
	start := time.Now()
	ids := GetPayloadStringSlice(payload, "ids")
	endpoint, ok := s.endpointRef()
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "service is not running")
	}
	closed := make([]string, 0, len(ids))
	for _, id := range ids {
		d, ok := s.devices.Get(id)
		if !ok {
			continue
		}
		conn, ok := endpoint.Lookup(d.IP)
		if !ok {
			continue
		}
		_ = conn.Close()
		closed = append(closed, id)
	}
	return NewSuccessResult(map[string]any{"disconnected": closed}, time.Since(start).Milliseconds())
}

// GetSelfInfo reports this process's advertised identity and live state.
func (s *Service) GetSelfInfo(_ map[string]any) CommandResult {
	start := time.Now()
	s.mu.Lock()
	info := map[string]any{
		"device_id":    s.selfID,
		"display_name": s.settings.DeviceName,
		"port":         bindPort(s.settings.BindAddr),
		"running":      s.running,
		"sharing":      s.sharing,
	}
	s.mu.Unlock()
	return NewSuccessResult(info, time.Since(start).Milliseconds())
}

// GetSettings returns the current settings snapshot.
func (s *Service) GetSettings(_ map[string]any) CommandResult {
	start := time.Now()
	s.mu.Lock()
	cp := *s.settings
	s.mu.Unlock()
	return NewSuccessResult(cp, time.Since(start).Milliseconds())
}

// SaveSettings applies any fields present in payload over the current
// settings and persists the result (§4.12 get/save_settings). Fields
// absent from payload are left unchanged.
func (s *Service) SaveSettings(payload map[string]any) CommandResult {
	start := time.Now()
	s.mu.Lock()
	next := *s.settings
	s.mu.Unlock()

	next.DeviceName = GetPayloadString(payload, "device_name", next.DeviceName)
	next.Quality = GetPayloadString(payload, "quality", next.Quality)
	next.FPS = GetPayloadInt(payload, "fps", next.FPS)
	next.DefaultResolutionIndex = GetPayloadInt(payload, "default_resolution_index", next.DefaultResolutionIndex)
	next.DefaultBitrateIndex = GetPayloadInt(payload, "default_bitrate_index", next.DefaultBitrateIndex)
	next.BindAddr = GetPayloadString(payload, "bind_addr", next.BindAddr)
	next.MDNSServiceName = GetPayloadString(payload, "mdns_service_name", next.MDNSServiceName)
	next.LogLevel = GetPayloadString(payload, "log_level", next.LogLevel)
	next.LogFormat = GetPayloadString(payload, "log_format", next.LogFormat)

	if err := config.SaveTo(&next, s.cfgPath); err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	s.mu.Lock()
	s.settings = &next
	s.mu.Unlock()

	return NewSuccessResult(next, time.Since(start).Milliseconds())
}

// StartSharing begins capturing displayID (payload key "display_id") and
// announces is_sharing to every connected peer via ScreenOffer (§9 Open
// Question 1).
func (s *Service) StartSharing(payload map[string]any) CommandResult {
	start := time.Now()
	share, endpoint, ok := s.shareAndEndpointRef()
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "service is not running")
	}
	displayID := GetPayloadInt(payload, "display_id", 0)
	if err := share.StartSharing(uint32(displayID)); err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	s.mu.Lock()
	s.sharing = true
	s.mu.Unlock()

	broadcastScreenOffer(endpoint, 1)
	return NewSuccessResult(map[string]any{"sharing": true}, time.Since(start).Milliseconds())
}

// StopSharing ends capture and every active viewer stream.
func (s *Service) StopSharing(_ map[string]any) CommandResult {
	start := time.Now()
	share, endpoint, ok := s.shareAndEndpointRef()
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "service is not running")
	}
	if err := share.StopSharing(); err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	s.mu.Lock()
	s.sharing = false
	s.mu.Unlock()

	broadcastScreenOffer(endpoint, 0)
	return NewSuccessResult(map[string]any{"sharing": false}, time.Since(start).Milliseconds())
}

// RequestStream connects to peerIP if not already connected and sends a
// ScreenRequest, the sole trigger that wakes the remote sharer's C9 loop
// (§5 flow diagram, §9 Open Question 1). The resulting StreamStart arrives
// on a freshly accepted stream, classified and handed to C10 automatically
// by the connection handler.
func (s *Service) RequestStream(payload map[string]any) CommandResult {
	start := time.Now()
	peerIP := GetPayloadString(payload, "peer_ip", "")
	if peerIP == "" {
		return errorResultf(time.Since(start).Milliseconds(), "peer_ip is required")
	}
	d, ok := s.lookupDeviceByIP(peerIP)
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "no known device at %s", peerIP)
	}
	endpoint, handler, ok := s.endpointAndHandlerRef()
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "service is not running")
	}

	if _, ok := endpoint.Lookup(d.IP); !ok {
		ctx, cancel := context.WithTimeout(context.Background(), transport.DialTimeout)
		defer cancel()
		addr := net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
		if err := s.connectAddr(ctx, handler, addr, d.ID); err != nil {
			return NewErrorResult(err, time.Since(start).Milliseconds())
		}
		if _, ok := endpoint.Lookup(d.IP); !ok {
			return errorResultf(time.Since(start).Milliseconds(), "connection vanished before request could be sent")
		}
	}

	encoded, err := wire.Encode(wire.ScreenRequest{DisplayIndex: 0}.Encode())
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	ctx, cancel := context.WithTimeout(context.Background(), transport.SendTimeout)
	defer cancel()
	if err := endpoint.SendToPeer(ctx, d.IP, encoded); err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	return NewSuccessResult(map[string]any{"requested": d.ID}, time.Since(start).Milliseconds())
}

// StopViewing ends the local viewer session for peerIP, if any (§4.12).
func (s *Service) StopViewing(payload map[string]any) CommandResult {
	start := time.Now()
	peerIP := GetPayloadString(payload, "peer_ip", "")
	if peerIP == "" {
		return errorResultf(time.Since(start).Milliseconds(), "peer_ip is required")
	}
	d, ok := s.lookupDeviceByIP(peerIP)
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "no known device at %s", peerIP)
	}
	stopped := s.viewers.Stop(d.ID)
	return NewSuccessResult(map[string]any{"stopped": stopped}, time.Since(start).Milliseconds())
}

// GetStreamStats reports the sharer-side metrics snapshot for one viewer
// (payload key "peer_id"), or every active viewer's snapshot if omitted.
func (s *Service) GetStreamStats(payload map[string]any) CommandResult {
	start := time.Now()
	share, ok := s.shareRef()
	if !ok {
		return errorResultf(time.Since(start).Milliseconds(), "service is not running")
	}

	if peerID := GetPayloadString(payload, "peer_id", ""); peerID != "" {
		stats, ok := share.ViewerStats(peerID)
		if !ok {
			return errorResultf(time.Since(start).Milliseconds(), "no active stream for %s", peerID)
		}
		return NewSuccessResult(stats, time.Since(start).Milliseconds())
	}

	out := make(map[string]sharer.MetricsSnapshot)
	for _, id := range share.ActiveViewers() {
		if stats, ok := share.ViewerStats(id); ok {
			out[id] = stats
		}
	}
	return NewSuccessResult(out, time.Since(start).Milliseconds())
}

// connectAddr dials addr, runs the outbound handshake under peerID, and
// registers the resulting connection (§4.6/§4.11). peerID is the device's
// real id when already known (discovered via mDNS), or addr itself when
// not (manual add, before any handshake has told us otherwise).
func (s *Service) connectAddr(ctx context.Context, handler *connhandler.Handler, addr, peerID string) error {
	conn, err := transport.Dial(addr)
	if err != nil {
		return err
	}
	if err := handler.HandleOutbound(ctx, conn, peerID); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

func (s *Service) lookupDeviceByIP(ip string) (device.Device, bool) {
	for _, d := range s.devices.List() {
		if d.IP == ip {
			return d, true
		}
	}
	return device.Device{}, false
}

func (s *Service) currentSettings() *config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Service) devicesRef() *device.Registry { return s.devices }
func (s *Service) viewersRef() *viewer.Registry { return s.viewers }

func (s *Service) handlerRef() (*connhandler.Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler, s.handler != nil
}

func (s *Service) endpointRef() (*transport.Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint, s.endpoint != nil
}

func (s *Service) shareRef() (*sharer.Sharer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.share, s.share != nil
}

func (s *Service) shareAndEndpointRef() (*sharer.Sharer, *transport.Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.share, s.endpoint, s.share != nil && s.endpoint != nil
}

func (s *Service) endpointAndHandlerRef() (*transport.Endpoint, *connhandler.Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint, s.handler, s.endpoint != nil && s.handler != nil
}

// acceptLoop accepts inbound connections until ctx is cancelled, handing
// each to the connection handler on its own goroutine.
func acceptLoop(ctx context.Context, endpoint *transport.Endpoint, handler *connhandler.Handler) {
	for {
		conn, err := endpoint.Accept(ctx)
		if err != nil {
			return
		}
		go handler.HandleInbound(ctx, conn)
	}
}

// broadcastScreenOffer announces displayCount to every currently
// connected peer on its control stream, best-effort (a failure to reach
// one peer never aborts the others).
func broadcastScreenOffer(endpoint *transport.Endpoint, displayCount int) {
	encoded, err := wire.Encode(wire.ScreenOffer{DisplayCount: displayCount}.Encode())
	if err != nil {
		log.Warn("failed to encode ScreenOffer", "error", err)
		return
	}
	for _, addr := range endpoint.Connections() {
		ctx, cancel := context.WithTimeout(context.Background(), transport.SendTimeout)
		err := endpoint.SendToPeer(ctx, addr, encoded)
		cancel()
		if err != nil {
			log.Warn("failed to send ScreenOffer", "peer", addr, "error", err)
		}
	}
}

func viewerConfigFromSettings(settings *config.Settings) viewer.Config {
	vc := viewer.Config{}
	if settings.DefaultResolutionIndex >= 0 && settings.DefaultResolutionIndex < len(config.ResolutionBoxes)-1 {
		box := config.ResolutionBoxes[settings.DefaultResolutionIndex]
		vc.DefaultTargetWidth, vc.DefaultTargetHeight = box[0], box[1]
	}
	if settings.DefaultBitrateIndex >= 0 && settings.DefaultBitrateIndex < len(config.BitrateOptions) {
		vc.DefaultBitrateBps = config.BitrateOptions[settings.DefaultBitrateIndex]
	}
	return vc
}

func bindPort(bindAddr string) uint16 {
	_, portStr, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return uint16(port)
}

func peerPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
