// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Role tags one side of the call. The controller keeps its peers in a
// role-indexed array, so Role values double as indexes.
type Role int

const (
	RoleLocal Role = iota
	RoleRemote
)

// Roles lists both roles in negotiation order (offerer first).
var Roles = [2]Role{RoleLocal, RoleRemote}

func (r Role) String() string {
	switch r {
	case RoleLocal:
		return "local"
	case RoleRemote:
		return "remote"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Other returns the counterpart role.
func (r Role) Other() Role {
	if r == RoleLocal {
		return RoleRemote
	}
	return RoleLocal
}

// ParseRole converts "local"/"remote" into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "local":
		return RoleLocal, nil
	case "remote":
		return RoleRemote, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Mode selects how the two peers are wired together.
type Mode string

const (
	ModeLoopback Mode = "loopback" // both peers in this process
	ModeOffer    Mode = "offer"    // this process is the local (offering) peer
	ModeAnswer   Mode = "answer"   // this process is the remote (answering) peer
)

// Signaling selects the network transport used by offer/answer modes.
type Signaling string

const (
	SignalingWS   Signaling = "ws"
	SignalingMQTT Signaling = "mqtt"
)

// Constraints is the capture request: which kinds of tracks to acquire.
type Constraints struct {
	Video bool
	Audio bool
}

// Config stores all parameters gathered from CLI flags or interactive prompts.
type Config struct {
	Mode      Mode
	Signaling Signaling

	WSListen string // answer over ws: address for the signaling server
	WSURL    string // offer over ws: URL of the answerer's signaling server
	PIN      string // ws: PIN required by the signaling server

	MQTTBroker  string // mqtt: broker URL, e.g. tcp://test.mosquitto.org:1883
	MQTTSession string // mqtt: shared session name both peers subscribe under

	ICEServers          []string // STUN/TURN URLs; empty for loopback
	LoopbackOnly        bool     // gather only loopback host candidates (offline demo)
	RestartOnICEFailure bool     // offerer renegotiates with an ICE restart on "failed"

	Capture             Constraints
	FrameRate           int
	OfferToReceiveVideo bool
	OfferToReceiveAudio bool

	Timeout     time.Duration // bound for capture + negotiation
	Duration    time.Duration // how long to keep the call up; 0 = until Ctrl+C
	DenyCapture bool          // simulate a denied capture permission

	Debug bool
}

// Default returns the loopback demo configuration.
func Default() Config {
	return Config{
		Mode:                ModeLoopback,
		Signaling:           SignalingWS,
		WSListen:            "127.0.0.1:0",
		MQTTBroker:          "tcp://test.mosquitto.org:1883",
		LoopbackOnly:        true,
		Capture:             Constraints{Video: true, Audio: true},
		FrameRate:           30,
		OfferToReceiveVideo: true,
		Timeout:             30 * time.Second,
	}
}

// Validate checks that the combination of fields is usable.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeLoopback:
	case ModeOffer, ModeAnswer:
		switch c.Signaling {
		case SignalingWS:
			if c.Mode == ModeOffer && c.WSURL == "" {
				return errors.New("offer mode over ws needs a signaling URL")
			}
		case SignalingMQTT:
			if c.MQTTBroker == "" || c.MQTTSession == "" {
				return errors.New("mqtt signaling needs a broker and a session name")
			}
		default:
			return fmt.Errorf("unknown signaling transport %q", c.Signaling)
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if !c.Capture.Video && !c.Capture.Audio {
		return errors.New("at least one of video or audio must be requested")
	}
	if c.FrameRate < 1 || c.FrameRate > 120 {
		return fmt.Errorf("invalid frame rate %d (must be 1~120)", c.FrameRate)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// LocalRoles returns the roles hosted by this process.
func (c Config) LocalRoles() []Role {
	switch c.Mode {
	case ModeOffer:
		return []Role{RoleLocal}
	case ModeAnswer:
		return []Role{RoleRemote}
	default:
		return []Role{RoleLocal, RoleRemote}
	}
}

// MarshalText encodes the role as "local" / "remote" in JSON messages.
func (r Role) MarshalText() ([]byte, error) {
	if r != RoleLocal && r != RoleRemote {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes "local" / "remote".
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
