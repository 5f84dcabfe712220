// Loopcall: CLI entry point.
//
// This tool runs a two-peer WebRTC call. By default both peers live in this
// process and exchange their offer, answer and ICE candidates over an
// in-process channel. With --mode=offer / --mode=answer the two peers run in
// separate processes and signal over WebSocket or MQTT instead.
//
// It can be launched interactively (no --mode) or non-interactively via CLI
// flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/loopcall/internal/call"
	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/media"
	"github.com/1ureka/loopcall/internal/signaling"
	"github.com/1ureka/loopcall/internal/transport"
	"github.com/1ureka/loopcall/internal/util"
)

var version = "dev"

// errShown marks a failure the notifier has already displayed.
var errShown = errors.New("already shown")

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()
	var mode, sig string

	// CLI flags.
	pflag.StringVarP(&mode, "mode", "m", "", "Mode: loopback, offer or answer (interactive when omitted)")
	pflag.StringVarP(&sig, "signaling", "s", string(cfg.Signaling), "Signaling transport for offer/answer: ws or mqtt")
	pflag.StringVar(&cfg.WSListen, "ws-listen", cfg.WSListen, "Signaling server address (answer over ws)")
	pflag.StringVarP(&cfg.WSURL, "ws-url", "u", "", "Signaling server URL to dial (offer over ws)")
	pflag.StringVarP(&cfg.PIN, "pin", "p", "", "Signaling server PIN (generated by the answerer when empty)")
	pflag.StringVar(&cfg.MQTTBroker, "mqtt-broker", cfg.MQTTBroker, "MQTT broker URL (mqtt signaling)")
	pflag.StringVar(&cfg.MQTTSession, "session", "", "Session name shared by both peers (mqtt signaling)")
	pflag.StringSliceVar(&cfg.ICEServers, "ice-server", nil, "STUN/TURN server URL, repeatable (defaults to public STUN for networked calls)")
	pflag.BoolVar(&cfg.LoopbackOnly, "loopback-only", cfg.LoopbackOnly, "Gather loopback candidates only (both peers on this machine)")
	pflag.BoolVar(&cfg.RestartOnICEFailure, "ice-restart", false, "Renegotiate with an ICE restart when the connection fails")
	pflag.BoolVar(&cfg.Capture.Video, "video", cfg.Capture.Video, "Capture video")
	pflag.BoolVar(&cfg.Capture.Audio, "audio", cfg.Capture.Audio, "Capture audio")
	pflag.IntVar(&cfg.FrameRate, "fps", cfg.FrameRate, "Video frame rate, 1~120")
	pflag.BoolVar(&cfg.OfferToReceiveVideo, "receive-video", cfg.OfferToReceiveVideo, "Offer to receive video")
	pflag.BoolVar(&cfg.OfferToReceiveAudio, "receive-audio", cfg.OfferToReceiveAudio, "Offer to receive audio")
	pflag.DurationVarP(&cfg.Timeout, "timeout", "t", cfg.Timeout, "Bound for capture and negotiation")
	pflag.DurationVar(&cfg.Duration, "duration", 0, "How long to keep the call up (0 = until Ctrl+C)")
	pflag.BoolVar(&cfg.DenyCapture, "deny-capture", false, "Simulate a denied camera/microphone permission")
	pflag.BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	pflag.Parse()

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Loopcall — v%s", version))
	pterm.Println()

	cfg.Signaling = config.Signaling(sig)
	if mode == "" {
		// No --mode flag: interactive mode.
		askConfig(&cfg)
	} else {
		cfg.Mode = config.Mode(mode)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		if !errors.Is(err, errShown) {
			util.Alert(err)
		}
		os.Exit(1)
	}

	util.LogInfo("successfully closed call")
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// run places or answers one call and keeps it up until Ctrl+C, the configured
// duration, or the counterpart hanging up.
func run(ctx context.Context, cfg config.Config) error {
	ch, err := openChannel(ctx, cfg)
	if err != nil {
		return err
	}
	if ch != nil {
		defer ch.Close()
	}

	util.LogDebug("hosting %v in this process", cfg.LocalRoles())

	peerOpts := transport.Options{ICEServers: cfg.ICEServers, LoopbackOnly: cfg.LoopbackOnly}
	if len(peerOpts.ICEServers) == 0 && !cfg.LoopbackOnly {
		peerOpts.ICEServers = transport.DefaultSTUNServers
	}

	c := call.New(call.Options{
		Device: &media.SyntheticDevice{FrameRate: cfg.FrameRate, Denied: cfg.DenyCapture},
		NewPeer: func(role config.Role) (call.PeerConnection, error) {
			return transport.NewPeer(role, peerOpts)
		},
		Notifier:            call.NotifierFunc(util.Alert),
		Channel:             ch,
		Constraints:         cfg.Capture,
		OfferToReceiveVideo: cfg.OfferToReceiveVideo,
		OfferToReceiveAudio: cfg.OfferToReceiveAudio,
		RestartOnICEFailure: cfg.RestartOnICEFailure,
	})
	defer c.StopCapture()
	defer c.EndCall()

	if err := negotiate(ctx, c, cfg.Mode, cfg.Timeout); err != nil {
		return err
	}

	util.StartStatsReporter(ctx, 2*time.Second)
	util.LogSuccess("call established — press Ctrl+C to hang up")

	var timeout <-chan time.Time
	if cfg.Duration > 0 {
		timeout = time.After(cfg.Duration)
	}

	var callErr error
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-c.Ended():
		if err := c.Err(); errors.Is(err, call.ErrHangup) {
			util.LogInfo("the other side hung up")
		} else {
			callErr = err
		}
	}

	printPreviews(c.LocalPreview(), c.RemotePreview())
	return callErr
}

// negotiator is the part of call.Controller that sets a call up.
type negotiator interface {
	StartCapture(ctx context.Context) error
	PlaceCall(ctx context.Context) error
	AwaitCall(ctx context.Context) error
	WaitConnected(ctx context.Context) error
}

// negotiate places or answers the call and waits for it to connect. An
// answerer waits for its caller without a bound; timeout starts counting
// once the offer has been answered.
func negotiate(ctx context.Context, c negotiator, mode config.Mode, timeout time.Duration) error {
	if mode == config.ModeAnswer {
		if err := c.AwaitCall(ctx); err != nil {
			return fmt.Errorf("failed to answer call: %w", err)
		}
		negCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := c.WaitConnected(negCtx); err != nil {
			return fmt.Errorf("call did not connect: %w", err)
		}
		return nil
	}

	negCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.StartCapture(negCtx); err != nil {
		return errShown
	}
	if err := c.PlaceCall(negCtx); err != nil {
		return fmt.Errorf("failed to place call: %w", err)
	}
	if err := c.WaitConnected(negCtx); err != nil {
		return fmt.Errorf("call did not connect: %w", err)
	}
	return nil
}

// openChannel connects the networked signaling channel for offer/answer
// modes. Loopback mode returns nil: the controller links its peers itself.
func openChannel(ctx context.Context, cfg config.Config) (signaling.Channel, error) {
	switch {
	case cfg.Mode == config.ModeLoopback:
		return nil, nil

	case cfg.Signaling == config.SignalingMQTT:
		role := config.RoleLocal
		if cfg.Mode == config.ModeAnswer {
			role = config.RoleRemote
		}
		util.LogInfo("connecting to MQTT broker %s (session %s)", cfg.MQTTBroker, cfg.MQTTSession)
		ch, err := signaling.DialMQTT(ctx, cfg.MQTTBroker, cfg.MQTTSession, role)
		if err != nil {
			return nil, err
		}
		return ch, nil

	case cfg.Mode == config.ModeOffer:
		wsURL, err := normalizeWSURL(cfg.WSURL, cfg.PIN)
		if err != nil {
			return nil, err
		}
		util.LogInfo("connecting to signaling server %s", wsURL)
		ch, err := signaling.Dial(ctx, wsURL)
		if err != nil {
			return nil, err
		}
		return ch, nil

	default:
		pin := cfg.PIN
		if pin == "" {
			pin = signaling.GeneratePIN(4)
		}
		srv, err := signaling.Listen(cfg.WSListen, pin)
		if err != nil {
			return nil, err
		}
		defer srv.Close()

		printServerBox(srv.Port(), pin)
		util.LogInfo("waiting for the caller to connect...")

		ch, err := srv.Accept(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to wait for caller: %w", err)
		}
		util.LogInfo("caller connected")
		return ch, nil
	}
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func printServerBox(port int, pin string) {
	pterm.Println()
	pterm.DefaultBox.WithTitle("WebSocket Signaling Server").Println(
		fmt.Sprintf("Port : %d\nPIN  : %s\n\nDial with: --mode=offer --ws-url=ws://<host>:%d --pin=%s", port, pin, port, pin),
	)
	pterm.Println()
}

func printPreviews(previews ...*media.Preview) {
	data := pterm.TableData{{"Preview", "Stream", "Frames", "Latency"}}
	for _, p := range previews {
		stream := "-"
		if s := p.Stream(); s != nil {
			stream = s.ID()
		}
		data = append(data, []string{
			p.Name(),
			stream,
			fmt.Sprint(p.Frames()),
			p.Latency().Round(time.Millisecond).String(),
		})
	}
	pterm.Println()
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

// askConfig fills the mode and the signaling settings from interactive prompts.
func askConfig(cfg *config.Config) {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Loopback — Both peers in this process",
			"Offer    — Call a peer in another process",
			"Answer   — Wait for a call from another process",
		}).
		WithDefaultText("Select a mode").
		Show()
	pterm.Println()

	switch {
	case strings.HasPrefix(choice, "Loopback"):
		cfg.Mode = config.ModeLoopback
		return
	case strings.HasPrefix(choice, "Offer"):
		cfg.Mode = config.ModeOffer
	default:
		cfg.Mode = config.ModeAnswer
	}

	transportChoice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"WebSocket", "MQTT"}).
		WithDefaultText("Select a signaling transport").
		Show()
	pterm.Println()

	if transportChoice == "MQTT" {
		cfg.Signaling = config.SignalingMQTT
		cfg.MQTTSession = askSession(cfg.Mode)
		return
	}

	cfg.Signaling = config.SignalingWS
	if cfg.Mode == config.ModeOffer {
		cfg.WSURL = askURL()
		cfg.PIN = askText("PIN shown by the answering side")
	}
}

// askSession prompts for the MQTT session name. The answering side may leave
// it empty to get a fresh one it then shares with the caller.
func askSession(mode config.Mode) string {
	for {
		session := askText("Session name (empty to generate one)")
		if session != "" {
			return session
		}
		if mode == config.ModeAnswer {
			session = uuid.NewString()
			util.LogInfo("session name: %s", session)
			return session
		}
		util.LogWarning("the caller must enter the session name shown by the answering side")
	}
}

func askText(prompt string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	return strings.TrimSpace(raw)
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw := askText("WebSocket URL (e.g. ws://127.0.0.1:8080)")
		if _, err := normalizeWSURL(raw, ""); err == nil {
			return raw
		}
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// normalizeWSURL validates a raw WebSocket URL and points it at /ws, adding
// the PIN as a query parameter when given.
func normalizeWSURL(raw, pin string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}

	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}

	q := u.Query()
	if pin != "" {
		q.Set("pin", pin)
	}

	out := url.URL{Scheme: scheme, Host: u.Host, Path: "/ws", RawQuery: q.Encode()}
	return out.String(), nil
}
