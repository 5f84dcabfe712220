package call

import (
	"context"
	"testing"
	"time"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/media"
	"github.com/1ureka/loopcall/internal/transport"
)

var _ PeerConnection = (*transport.Peer)(nil)

// TestLoopbackCallWithPion runs a whole call over real pion peer connections
// on the loopback interface and checks that remote media gets rendered.
func TestLoopbackCallWithPion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pion loopback call in short mode")
	}

	notifier := &recordingNotifier{}
	c := New(Options{
		Device: &media.SyntheticDevice{FrameRate: 30},
		NewPeer: func(role config.Role) (PeerConnection, error) {
			return transport.NewPeer(role, transport.Options{LoopbackOnly: true})
		},
		Notifier:            notifier,
		Constraints:         config.Constraints{Video: true, Audio: true},
		OfferToReceiveVideo: true,
	})
	defer c.StopCapture()
	defer c.EndCall()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if err := c.PlaceCall(ctx); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}

	local, remote := c.Peer(config.RoleLocal), c.Peer(config.RoleRemote)
	if local.LocalDescription().SDP != remote.RemoteDescription().SDP {
		t.Error("offer differs between local and remote peer")
	}
	if remote.LocalDescription().SDP != local.RemoteDescription().SDP {
		t.Error("answer differs between remote and local peer")
	}

	if err := c.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected: %v", err)
	}

	for c.RemotePreview().Frames() < 10 {
		select {
		case <-ctx.Done():
			t.Fatalf("remote preview rendered %d frames before timeout", c.RemotePreview().Frames())
		case <-time.After(50 * time.Millisecond):
		}
	}

	remoteStream := c.RemotePreview().Stream()
	if remoteStream == nil || len(remoteStream.Tracks()) == 0 {
		t.Fatal("remote preview bound without tracks")
	}
	if notifier.count() != 0 {
		t.Errorf("unexpected alerts: %v", notifier.errs)
	}

	c.EndCall()
	if c.RemotePreview().Bound() {
		t.Error("remote preview still bound after EndCall")
	}
}
