package supervisor

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/sua-org/cam-recorder/internal/config"
	"github.com/sua-org/cam-recorder/internal/core"
	"github.com/sua-org/cam-recorder/internal/gateway/gatewaytest"
	"github.com/sua-org/cam-recorder/internal/session"
	"github.com/sua-org/cam-recorder/internal/status"
)

func testOptions(t *testing.T, gw *gatewaytest.Fake, board *status.Board) Options {
	return Options{
		Gateway:  gw,
		Config:   config.Static{DurationMinutes: 5, Quality: core.QualityHD},
		Sink:     board,
		BasePath: t.TempDir(),
		Logger:   log.New(io.Discard, "", 0),
		Timings: session.Timings{
			RetryBackoff:    20 * time.Millisecond,
			RestartDelay:    10 * time.Millisecond,
			RotationGap:     10 * time.Millisecond,
			Minute:          time.Hour,
			CallTimeout:     time.Second,
			TeardownTimeout: time.Second,
		},
		RetryDelay:    15 * time.Millisecond,
		ShutdownGrace: 2 * time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func runSupervisor(t *testing.T, sup *Supervisor) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("supervisor did not return after cancel")
		}
	}
}

func TestSupervisor_LoginRetryThenSessionsPerCamera(t *testing.T) {
	cams := []core.CameraDescriptor{
		{ID: "1", Name: "Front"},
		{ID: "2", Name: "Back"},
		{ID: "2", Name: "Back (dup)"},
	}
	gw := gatewaytest.New(cams...)
	gw.LoginErr = func(n int) error {
		if n < 3 {
			return errors.New("bad credentials")
		}
		return nil
	}
	board := status.NewBoard()
	sup := New(testOptions(t, gw, board))
	cancel := runSupervisor(t, sup)

	waitFor(t, "two recording cameras", func() bool {
		return board.Summary().ByState["recording"] == 2
	})

	if n := gw.Count("Login", ""); n != 3 {
		t.Errorf("logins = %d, want 3", n)
	}
	if n := gw.Count("Discover", ""); n != 1 {
		t.Errorf("discoveries = %d, want 1", n)
	}
	sessions := sup.Sessions()
	if len(sessions) != 2 || sessions[0].CameraID() != "1" || sessions[1].CameraID() != "2" {
		t.Fatalf("sessions = %d", len(sessions))
	}
	if got := board.Summary().Text; got != "Recording 2/2 cameras (Found 3 cameras)" {
		t.Errorf("summary = %q", got)
	}

	cancel()

	for _, sess := range sessions {
		if sess.State() != session.Stopped {
			t.Errorf("session %s state = %s after shutdown", sess.CameraID(), sess.State())
		}
	}
	if gw.Released("1") != 1 || gw.Released("2") != 1 {
		t.Errorf("released = %d/%d", gw.Released("1"), gw.Released("2"))
	}
	if gw.Count("StopRecording", "1") != 1 {
		t.Errorf("active recording not stopped on shutdown")
	}
}

func TestSupervisor_DiscoveryRetry(t *testing.T) {
	gw := gatewaytest.New(core.CameraDescriptor{ID: "9", Name: "Lobby"})
	gw.DiscoverErr = func(n int) error {
		if n == 1 {
			return errors.New("bridge down")
		}
		return nil
	}
	board := status.NewBoard()
	sup := New(testOptions(t, gw, board))
	cancel := runSupervisor(t, sup)
	defer cancel()

	waitFor(t, "session created", func() bool { return len(sup.Sessions()) == 1 })
	if n := gw.Count("Discover", ""); n != 2 {
		t.Errorf("discoveries = %d", n)
	}
}

func TestSupervisor_LoginFailureShownAsFleetText(t *testing.T) {
	gw := gatewaytest.New()
	gw.LoginErr = func(int) error { return errors.New("expired") }
	board := status.NewBoard()
	sup := New(testOptions(t, gw, board))
	cancel := runSupervisor(t, sup)

	waitFor(t, "login failure text", func() bool {
		return board.Summary().Text == "Login failed: login failed: expired"
	})
	cancel()

	if n := gw.Count("Discover", ""); n != 0 {
		t.Errorf("discovered without login (%d)", n)
	}
}

func TestSupervisor_StuckCameraDoesNotBlockOthers(t *testing.T) {
	gw := gatewaytest.New(
		core.CameraDescriptor{ID: "a", Name: "Stuck"},
		core.CameraDescriptor{ID: "b", Name: "Healthy"},
	)
	gw.Block("a")
	board := status.NewBoard()
	opts := testOptions(t, gw, board)
	opts.ShutdownGrace = 50 * time.Millisecond
	sup := New(opts)
	cancel := runSupervisor(t, sup)

	waitFor(t, "healthy camera recording", func() bool {
		c, ok := board.Camera("b")
		return ok && c.State == "recording"
	})

	// shutdown com uma câmera presa retorna após a carência
	start := time.Now()
	cancel()
	if d := time.Since(start); d > time.Second {
		t.Errorf("shutdown took %s", d)
	}
	gw.Unblock("a")

	for _, sess := range sup.Sessions() {
		if sess.CameraID() == "a" {
			select {
			case <-sess.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("stuck session never stopped after its connect returned")
			}
			if n := gw.Count("StartPreview", "a"); n != 0 {
				t.Errorf("stuck camera previewed after stop")
			}
		}
	}
}
