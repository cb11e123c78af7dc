package peer

import (
	"time"

	"github.com/BioHazard786/Warpchat/internal/config"
	pion "github.com/pion/webrtc/v4"
)

// DefaultGatherTimeout bounds how long a session waits for ICE gathering
// before giving up on emitting its signal.
const DefaultGatherTimeout = 15 * time.Second

// ICEConfig describes how a session finds its peer.
type ICEConfig struct {
	Servers []pion.ICEServer

	// RelayOnly restricts candidates to TURN relays.
	RelayOnly bool

	// IncludeLoopback adds 127.0.0.1 candidates, for same-machine peers.
	IncludeLoopback bool

	// GatherTimeout defaults to DefaultGatherTimeout.
	GatherTimeout time.Duration
}

// ICEFromConfig builds the ICE settings for cfg. Relay-only is used when it
// is requested, or when the host looks like it sits behind CGNAT or a VPN,
// but only if a TURN server is configured.
func ICEFromConfig(cfg *config.Config) ICEConfig {
	var ice ICEConfig

	if stun := cfg.GetSTUNServers(); stun != nil {
		ice.Servers = append(ice.Servers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		ice.Servers = append(ice.Servers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	ice.RelayOnly = turnServers != nil && (cfg.ForceRelay || ShouldForceRelay())
	return ice
}

func (c ICEConfig) gatherTimeout() time.Duration {
	if c.GatherTimeout <= 0 {
		return DefaultGatherTimeout
	}
	return c.GatherTimeout
}

func (c ICEConfig) newPeerConnection() (*pion.PeerConnection, error) {
	policy := pion.ICETransportPolicyAll
	if c.RelayOnly {
		policy = pion.ICETransportPolicyRelay
	}

	settingEngine := pion.SettingEngine{}
	if c.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	api := pion.NewAPI(pion.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(pion.Configuration{
		ICEServers:         c.Servers,
		ICETransportPolicy: policy,
	})
}
