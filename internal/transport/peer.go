package transport

import (
	"fmt"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/util"
)

// DefaultSTUNServers are used for networked calls when no ICE server is
// configured. No TURN: calls rely on direct connectivity.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Options configures how peer connections gather candidates.
type Options struct {
	// ICEServers are STUN/TURN URLs. No TURN by default: a loopback call
	// needs no infrastructure at all.
	ICEServers []string

	// LoopbackOnly restricts gathering to loopback host candidates, so a
	// single-process call works offline and never touches real interfaces.
	LoopbackOnly bool
}

// newAPI builds a pion API with the default codecs and interceptors (NACK,
// RTCP reports, TWCC) and pion's logs routed to the process logger.
func newAPI(opts Options) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: util.NewPionLoggerFactory()}
	if opts.LoopbackOnly {
		s.SetIncludeLoopbackCandidate(true)
		s.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
		s.SetInterfaceFilter(func(name string) bool {
			return strings.HasPrefix(name, "lo")
		})
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(s),
	), nil
}

// newPeerConnection creates a PeerConnection configured with opts.
func newPeerConnection(opts Options) (*webrtc.PeerConnection, error) {
	api, err := newAPI(opts)
	if err != nil {
		return nil, err
	}

	config := webrtc.Configuration{}
	if len(opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: opts.ICEServers}}
	}
	return api.NewPeerConnection(config)
}
