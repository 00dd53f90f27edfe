package session

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sua-org/cam-recorder/internal/config"
	"github.com/sua-org/cam-recorder/internal/core"
	"github.com/sua-org/cam-recorder/internal/gateway/gatewaytest"
	"github.com/sua-org/cam-recorder/internal/status"
)

func kinds(acts []action) []actionKind {
	out := make([]actionKind, len(acts))
	for i, a := range acts {
		out[i] = a.kind
	}
	return out
}

func sameKinds(a, b []actionKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTransition(t *testing.T) {
	boom := errors.New("boom")
	recording := machine{state: Recording, recording: true, epoch: 3}

	tests := []struct {
		name  string
		m     machine
		ev    Event
		want  State
		acts  []actionKind
		check func(t *testing.T, m machine)
	}{
		{
			name: "start connects",
			m:    machine{state: Idle},
			ev:   eventStart{},
			want: Connecting,
			acts: []actionKind{actConnect},
		},
		{
			name: "connect ok starts preview",
			m:    machine{state: Connecting, busy: true},
			ev:   ConnectResult{},
			want: Previewing,
			acts: []actionKind{actStartPreview},
		},
		{
			name: "connect error releases and backs off",
			m:    machine{state: Connecting, busy: true},
			ev:   ConnectResult{Err: boom},
			want: Connecting,
			acts: []actionKind{actReleasePartial, actBackoff},
		},
		{
			name: "backoff elapsed reconnects",
			m:    machine{state: Connecting},
			ev:   BackoffElapsed{},
			want: Connecting,
			acts: []actionKind{actConnect},
		},
		{
			name: "preview ok starts recording with new epoch",
			m:    machine{state: Previewing, busy: true, epoch: 1},
			ev:   PreviewResult{},
			want: Recording,
			acts: []actionKind{actStartRecording},
			check: func(t *testing.T, m machine) {
				if m.epoch != 2 || !m.busy {
					t.Errorf("epoch=%d busy=%v", m.epoch, m.busy)
				}
			},
		},
		{
			name: "preview error backs off",
			m:    machine{state: Previewing, busy: true},
			ev:   PreviewResult{Err: boom},
			want: Connecting,
			acts: []actionKind{actBackoff},
		},
		{
			name: "record start ok arms rotation",
			m:    machine{state: Recording, busy: true, epoch: 2},
			ev:   RecordStartResult{},
			want: Recording,
			acts: []actionKind{actArmRotation},
			check: func(t *testing.T, m machine) {
				if !m.recording || m.busy {
					t.Errorf("recording=%v busy=%v", m.recording, m.busy)
				}
			},
		},
		{
			name: "record start error closes preview and backs off",
			m:    machine{state: Recording, busy: true},
			ev:   RecordStartResult{Err: boom},
			want: Connecting,
			acts: []actionKind{actStopPreview, actBackoff},
		},
		{
			name: "interruption success closes file and restarts",
			m:    recording,
			ev:   Interruption{Epoch: 3, Code: 1},
			want: Restarting,
			acts: []actionKind{actCancelRotation, actFinishFile, actRestartDelay},
		},
		{
			name: "interruption failure reconnects",
			m:    recording,
			ev:   Interruption{Epoch: 3, Code: 0},
			want: Connecting,
			acts: []actionKind{actCancelRotation, actStopPreview, actBackoff},
		},
		{
			name: "interruption during record start is kept",
			m:    machine{state: Recording, busy: true, epoch: 3},
			ev:   Interruption{Epoch: 3, Code: -1},
			want: Recording,
			check: func(t *testing.T, m machine) {
				if !m.pendingInterrupt || m.pendingCode != -1 || !m.busy {
					t.Errorf("pending=%v code=%d busy=%v", m.pendingInterrupt, m.pendingCode, m.busy)
				}
			},
		},
		{
			name: "kept failure applied when record start returns",
			m:    machine{state: Recording, busy: true, epoch: 3, pendingInterrupt: true, pendingCode: -1},
			ev:   RecordStartResult{},
			want: Connecting,
			acts: []actionKind{actCancelRotation, actStopPreview, actBackoff},
			check: func(t *testing.T, m machine) {
				if m.pendingInterrupt || m.recording || m.busy {
					t.Errorf("pending=%v recording=%v busy=%v", m.pendingInterrupt, m.recording, m.busy)
				}
			},
		},
		{
			name: "kept success applied when record start returns",
			m:    machine{state: Recording, busy: true, epoch: 3, pendingInterrupt: true, pendingCode: 2},
			ev:   RecordStartResult{},
			want: Restarting,
			acts: []actionKind{actCancelRotation, actFinishFile, actRestartDelay},
		},
		{
			name: "kept interruption dropped when record start fails",
			m:    machine{state: Recording, busy: true, epoch: 3, pendingInterrupt: true, pendingCode: 1},
			ev:   RecordStartResult{Err: boom},
			want: Connecting,
			acts: []actionKind{actStopPreview, actBackoff},
			check: func(t *testing.T, m machine) {
				if m.pendingInterrupt {
					t.Error("pending interruption survived a failed start")
				}
			},
		},
		{
			name: "interruption for an older recording during record start ignored",
			m:    machine{state: Recording, busy: true, epoch: 3},
			ev:   Interruption{Epoch: 2, Code: -1},
			want: Recording,
			check: func(t *testing.T, m machine) {
				if m.pendingInterrupt {
					t.Error("stale interruption kept")
				}
			},
		},
		{
			name: "stale interruption ignored",
			m:    recording,
			ev:   Interruption{Epoch: 2, Code: -1},
			want: Recording,
		},
		{
			name: "restart elapsed starts a new recording",
			m:    machine{state: Restarting, epoch: 3},
			ev:   RestartElapsed{},
			want: Recording,
			acts: []actionKind{actStartRecording},
		},
		{
			name: "restart elapsed while recording ignored",
			m:    recording,
			ev:   RestartElapsed{},
			want: Recording,
		},
		{
			name: "stop while restarting stops without a recording",
			m:    machine{state: Restarting, epoch: 3},
			ev:   StopRequested{},
			want: Stopped,
			acts: []actionKind{actCancelRotation, actCancelTimer, actTeardown},
		},
		{
			name: "rotation fire stops recording",
			m:    recording,
			ev:   RotationFire{Epoch: 3},
			want: RotatingStop,
			acts: []actionKind{actStopRecording},
		},
		{
			name: "stale rotation fire ignored",
			m:    recording,
			ev:   RotationFire{Epoch: 1},
			want: Recording,
		},
		{
			name: "record stop ok waits the gap",
			m:    machine{state: RotatingStop, busy: true, recording: true},
			ev:   RecordStopResult{},
			want: RotatingWait,
			acts: []actionKind{actFinishFile, actGap},
		},
		{
			name: "record stop error still waits the gap",
			m:    machine{state: RotatingStop, busy: true, recording: true},
			ev:   RecordStopResult{Err: boom},
			want: RotatingWait,
			acts: []actionKind{actGap},
		},
		{
			name: "gap elapsed starts recording",
			m:    machine{state: RotatingWait, epoch: 4},
			ev:   GapElapsed{},
			want: Recording,
			acts: []actionKind{actStartRecording},
		},
		{
			name: "stop while idle in backoff stops now",
			m:    machine{state: Connecting},
			ev:   StopRequested{},
			want: Stopped,
			acts: []actionKind{actCancelRotation, actCancelTimer, actTeardown},
		},
		{
			name: "stop while busy waits",
			m:    machine{state: Previewing, busy: true},
			ev:   StopRequested{},
			want: Previewing,
			check: func(t *testing.T, m machine) {
				if !m.stopRequested {
					t.Error("stop flag not set")
				}
			},
		},
		{
			name: "in-flight result after stop goes to stopped",
			m:    machine{state: Previewing, busy: true, stopRequested: true},
			ev:   PreviewResult{},
			want: Stopped,
			acts: []actionKind{actCancelRotation, actCancelTimer, actTeardown},
		},
		{
			name: "stop while recording tears down the recording",
			m:    recording,
			ev:   StopRequested{},
			want: Stopped,
			acts: []actionKind{actCancelRotation, actCancelTimer, actTeardown},
			check: func(t *testing.T, m machine) {
				if m.recording {
					t.Error("recording flag survived stop")
				}
			},
		},
		{
			name: "stopped ignores everything",
			m:    machine{state: Stopped},
			ev:   BackoffElapsed{},
			want: Stopped,
		},
		{
			name: "late connect result in recording ignored",
			m:    recording,
			ev:   ConnectResult{},
			want: Recording,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, acts := transition(tt.m, tt.ev)
			if got.state != tt.want {
				t.Fatalf("state = %s, want %s", got.state, tt.want)
			}
			if !sameKinds(kinds(acts), tt.acts) {
				t.Fatalf("actions = %v, want %v", kinds(acts), tt.acts)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestTransition_TeardownStopsOnlyActiveRecording(t *testing.T) {
	_, acts := transition(machine{state: Recording, recording: true, epoch: 1}, StopRequested{})
	last := acts[len(acts)-1]
	if last.kind != actTeardown || !last.stopRecording {
		t.Fatalf("teardown = %+v, want stopRecording", last)
	}

	_, acts = transition(machine{state: RotatingWait}, StopRequested{})
	last = acts[len(acts)-1]
	if last.kind != actTeardown || last.stopRecording {
		t.Fatalf("teardown = %+v, want no stopRecording", last)
	}
}

// --- worker ---

// recSink guarda todos os updates em ordem.
type recSink struct {
	mu      sync.Mutex
	updates []status.Update
}

func (r *recSink) Report(u status.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recSink) count(cameraID, prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.updates {
		if u.CameraID == cameraID && strings.HasPrefix(u.Text, prefix) {
			n++
		}
	}
	return n
}

// minuteClock avança um minuto a cada leitura, para que cada arquivo tenha nome próprio.
func minuteClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Minute)
	}
}

func testTimings() Timings {
	return Timings{
		RetryBackoff:    20 * time.Millisecond,
		RestartDelay:    10 * time.Millisecond,
		RotationGap:     10 * time.Millisecond,
		Minute:          time.Hour,
		CallTimeout:     2 * time.Second,
		TeardownTimeout: time.Second,
	}
}

type harness struct {
	gw     *gatewaytest.Fake
	sink   *recSink
	mu     sync.Mutex
	closed []string
}

func newHarness(cams ...core.CameraDescriptor) *harness {
	return &harness{gw: gatewaytest.New(cams...), sink: &recSink{}}
}

func (h *harness) session(t *testing.T, cam core.CameraDescriptor, tm Timings, rec config.Recording) *Session {
	t.Helper()
	return New(cam, Options{
		BasePath: t.TempDir(),
		Gateway:  h.gw,
		Config:   config.Static(rec),
		Sink:     h.sink,
		Logger:   log.New(io.Discard, "", 0),
		Timings:  tm,
		Now:      minuteClock(),
		OnFileClosed: func(_, path string) {
			h.mu.Lock()
			h.closed = append(h.closed, path)
			h.mu.Unlock()
		},
	})
}

func (h *harness) closedFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.closed...)
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

func stopAndWait(t *testing.T, s *Session) {
	t.Helper()
	s.Stop()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session %s did not stop (state %s)", s.Name(), s.State())
	}
}

var hdCam = core.CameraDescriptor{
	ID:           "cam-1",
	Name:         "Front Door",
	Capabilities: core.Capabilities{Tiers: `{"0":"low","1":"high"}`, Bitrate: -1},
}

func TestSession_ConnectRetriesForeverWithFixedDelay(t *testing.T) {
	h := newHarness()
	h.gw.ConnectErr = func(string, int) error { return errors.New("offline") }

	var mu sync.Mutex
	var stamps []time.Time
	h.gw.OnCall = func(c gatewaytest.Call) {
		if c.Method == "Connect" {
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}
	}

	tm := testTimings()
	s := h.session(t, hdCam, tm, config.Recording{DurationMinutes: 1, Quality: core.QualityHD})
	go s.Run()

	waitFor(t, "5 connect attempts", func() bool { return h.gw.Count("Connect", hdCam.ID) >= 5 })
	stopAndWait(t, s)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < tm.RetryBackoff {
			t.Errorf("attempt %d came after %s, want >= %s", i, gap, tm.RetryBackoff)
		}
	}
	if n := h.gw.Count("StartPreview", hdCam.ID); n != 0 {
		t.Errorf("preview started %d times without a connection", n)
	}
	// cada falha libera o parcial; o stop libera mais uma vez
	if got, attempts := h.gw.Released(hdCam.ID), h.gw.Count("Connect", hdCam.ID); got < attempts {
		t.Errorf("released %d times for %d failed connects", got, attempts)
	}
	if h.sink.count(hdCam.ID, "Failed (connect") < 4 {
		t.Error("retry status not reported")
	}
}

func TestSession_OneMinuteHDRotation(t *testing.T) {
	h := newHarness()
	tm := testTimings()
	tm.Minute = 40 * time.Millisecond
	s := h.session(t, hdCam, tm, config.Recording{DurationMinutes: 1, Quality: core.QualityHD})
	go s.Run()

	waitFor(t, "three recordings", func() bool { return len(h.gw.Paths(hdCam.ID)) >= 3 })
	stopAndWait(t, s)

	if streams := h.gw.Streams(hdCam.ID); len(streams) != 1 || streams[0] != "101" {
		t.Fatalf("streams = %v, want [101]", streams)
	}

	paths := h.gw.Paths(hdCam.ID)
	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("path reused: %s", p)
		}
		seen[p] = true
		if !strings.Contains(p, "/Front_Door/Front_Door_") || !strings.HasSuffix(p, ".mp4") {
			t.Errorf("unexpected path %s", p)
		}
	}

	if n := h.gw.Count("Connect", hdCam.ID); n != 1 {
		t.Errorf("rotation reconnected: %d connects", n)
	}
	if n := h.gw.Count("StopRecording", hdCam.ID); n < 2 {
		t.Errorf("stop-record called %d times, want at least 2", n)
	}
	if n := h.gw.Released(hdCam.ID); n != 1 {
		t.Errorf("released %d times, want exactly 1", n)
	}
	if got := h.closedFiles(); len(got) < 2 || got[0] != paths[0] || got[1] != paths[1] {
		t.Errorf("closed files = %v, recordings = %v", got, paths)
	}
}

func TestSession_StopDuringConnectNeverRecords(t *testing.T) {
	h := newHarness()
	h.gw.Block(hdCam.ID)
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 1, Quality: core.QualityHD})
	go s.Run()

	waitFor(t, "connect in flight", func() bool { return h.gw.Count("Connect", hdCam.ID) == 1 })
	s.Stop()

	// o stop espera a chamada em andamento
	time.Sleep(20 * time.Millisecond)
	select {
	case <-s.Done():
		t.Fatal("session stopped while connect was in flight")
	default:
	}

	h.gw.Unblock(hdCam.ID)
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop after connect returned")
	}

	if s.State() != Stopped {
		t.Errorf("state = %s", s.State())
	}
	if n := h.gw.Count("StartPreview", hdCam.ID) + h.gw.Count("StartRecording", hdCam.ID); n != 0 {
		t.Errorf("%d preview/record calls after stop", n)
	}
	if n := h.gw.Released(hdCam.ID); n != 1 {
		t.Errorf("released %d times, want 1", n)
	}
}

func TestSession_StopWhileRecordingStopsFileAndReleasesOnce(t *testing.T) {
	h := newHarness()
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 5, Quality: core.QualityHD})
	go s.Run()

	waitFor(t, "recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	stopAndWait(t, s)

	if n := h.gw.Count("StopRecording", hdCam.ID); n != 1 {
		t.Errorf("stop-record on shutdown called %d times", n)
	}
	if n := h.gw.Released(hdCam.ID); n != 1 {
		t.Errorf("released %d times", n)
	}
	if got := h.closedFiles(); len(got) != 1 {
		t.Errorf("closed files = %v", got)
	}
	if n := len(h.gw.Paths(hdCam.ID)); n != 1 {
		t.Errorf("%d recordings started", n)
	}
}

func TestSession_InterruptionSuccessRestartsRecording(t *testing.T) {
	h := newHarness()
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 5, Quality: core.QualityHD})
	go s.Run()
	defer stopAndWait(t, s)

	waitFor(t, "recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	if !h.gw.Interrupt(hdCam.ID, 1) {
		t.Fatal("no recording to interrupt")
	}
	waitFor(t, "second recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 2 })

	paths := h.gw.Paths(hdCam.ID)
	if len(paths) != 2 || paths[0] == paths[1] {
		t.Fatalf("paths = %v", paths)
	}
	if n := h.gw.Count("Connect", hdCam.ID); n != 1 {
		t.Errorf("restart reconnected (%d connects)", n)
	}
	if n := h.gw.Count("StartPreview", hdCam.ID); n != 1 {
		t.Errorf("restart reopened preview (%d)", n)
	}
	if got := h.closedFiles(); len(got) != 1 || got[0] != paths[0] {
		t.Errorf("closed files = %v", got)
	}
}

func TestSession_InterruptionFailureReconnects(t *testing.T) {
	h := newHarness()
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 5, Quality: core.QualityHD})
	go s.Run()
	defer stopAndWait(t, s)

	waitFor(t, "recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	h.gw.Interrupt(hdCam.ID, -3)
	waitFor(t, "reconnect", func() bool { return h.gw.Count("Connect", hdCam.ID) == 2 })
	waitFor(t, "recording again", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 2 })

	if got := h.closedFiles(); len(got) != 0 {
		t.Errorf("failed recording reported as closed: %v", got)
	}
	if n := h.gw.Count("StopPreview", hdCam.ID); n != 1 {
		t.Errorf("stop-preview called %d times, want 1", n)
	}
}

func TestSession_InterruptionBeforeRecordStartReturns(t *testing.T) {
	h := newHarness()
	// o primeiro record-start falha no dispositivo antes do POST responder
	h.gw.RecordStartInterrupt = func(_ string, n int) (int, bool) {
		return -1, n == 1
	}
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 60, Quality: core.QualityHD})
	go s.Run()
	defer stopAndWait(t, s)

	waitFor(t, "reconnect", func() bool { return h.gw.Count("Connect", hdCam.ID) == 2 })
	waitFor(t, "recording again", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })

	if n := len(h.gw.Paths(hdCam.ID)); n != 2 {
		t.Errorf("record starts = %d, want 2", n)
	}
	if n := h.gw.Count("StopPreview", hdCam.ID); n != 1 {
		t.Errorf("stop-preview called %d times, want 1", n)
	}
	if got := h.closedFiles(); len(got) != 0 {
		t.Errorf("failed recording reported as closed: %v", got)
	}
}

func TestSession_CompletionBeforeRecordStartReturnsRestarts(t *testing.T) {
	h := newHarness()
	h.gw.RecordStartInterrupt = func(_ string, n int) (int, bool) {
		return 1, n == 1
	}
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 60, Quality: core.QualityHD})
	go s.Run()
	defer stopAndWait(t, s)

	waitFor(t, "second recording", func() bool { return len(h.gw.Paths(hdCam.ID)) == 2 })
	if n := h.gw.Count("Connect", hdCam.ID); n != 1 {
		t.Errorf("restart reconnected (%d connects)", n)
	}
	if n := h.gw.Count("StopPreview", hdCam.ID); n != 0 {
		t.Errorf("stop-preview called %d times on a normal completion", n)
	}
}

func TestSession_RestartInSameMinuteHoldsClosedFile(t *testing.T) {
	h := newHarness()
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 5, Quality: core.QualityHD})
	fixed := time.Date(2025, 3, 1, 10, 5, 10, 0, time.UTC)
	s.opts.Now = func() time.Time { return fixed }
	go s.Run()

	waitFor(t, "recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	h.gw.Interrupt(hdCam.ID, 1)
	waitFor(t, "second recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 2 })

	paths := h.gw.Paths(hdCam.ID)
	if len(paths) != 2 || paths[0] != paths[1] {
		t.Fatalf("paths = %v, want the same name twice", paths)
	}
	if got := h.closedFiles(); len(got) != 0 {
		t.Fatalf("file handed off while still being recorded: %v", got)
	}

	stopAndWait(t, s)
	if got := h.closedFiles(); len(got) != 1 || got[0] != paths[0] {
		t.Errorf("closed files = %v, want [%s]", got, paths[0])
	}
}

func TestSession_RestartingHasNoActiveFile(t *testing.T) {
	h := newHarness()
	tm := testTimings()
	tm.RestartDelay = time.Hour
	s := h.session(t, hdCam, tm, config.Recording{DurationMinutes: 5, Quality: core.QualityHD})
	go s.Run()

	waitFor(t, "recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	h.gw.Interrupt(hdCam.ID, 1)
	waitFor(t, "restarting", func() bool { return s.State() == Restarting })

	stopAndWait(t, s)
	if n := h.gw.Count("StopRecording", hdCam.ID); n != 0 {
		t.Errorf("stop-record called %d times with no active recording", n)
	}
	if got := h.closedFiles(); len(got) != 1 {
		t.Errorf("closed files = %v", got)
	}
}

func TestSession_RecordStartFailureBacksOff(t *testing.T) {
	h := newHarness()
	h.gw.RecordStartErr = func(_ string, n int) error {
		if n == 1 {
			return errors.New("disk busy")
		}
		return nil
	}
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 5, Quality: core.QualityHD})
	go s.Run()
	defer stopAndWait(t, s)

	waitFor(t, "recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	if n := h.gw.Count("Connect", hdCam.ID); n != 2 {
		t.Errorf("connects = %d, want 2", n)
	}
	if n := len(h.gw.Paths(hdCam.ID)); n != 2 {
		t.Errorf("record starts = %d, want 2", n)
	}
	if n := h.gw.Count("StopPreview", hdCam.ID); n != 1 {
		t.Errorf("stop-preview called %d times, want 1", n)
	}
}

func TestSession_QualityReadFreshEachCycle(t *testing.T) {
	h := newHarness()
	store := config.NewStore(config.Recording{DurationMinutes: 5, Quality: core.QualityHD}, "")
	h.gw.PreviewErr = func(_ string, n int) error {
		if n == 1 {
			return errors.New("no stream")
		}
		return nil
	}
	h.gw.OnCall = func(c gatewaytest.Call) {
		if c.Method == "StartPreview" {
			sd := "SD"
			store.Apply(config.Update{Quality: &sd})
		}
	}

	cam := hdCam
	cam.Capabilities.Tiers = `{"0":"a","1":"b","3":"c"}`
	s := New(cam, Options{
		BasePath: t.TempDir(),
		Gateway:  h.gw,
		Config:   store,
		Sink:     h.sink,
		Logger:   log.New(io.Discard, "", 0),
		Timings:  testTimings(),
		Now:      minuteClock(),
	})
	go s.Run()
	defer stopAndWait(t, s)

	waitFor(t, "recording", func() bool { return h.sink.count(cam.ID, "Recording to") == 1 })
	streams := h.gw.Streams(cam.ID)
	if len(streams) != 2 || streams[0] != "103" || streams[1] != "101" {
		t.Errorf("streams = %v, want [103 101]", streams)
	}
}

func TestSession_StreamClosedOnlyReported(t *testing.T) {
	h := newHarness()
	s := h.session(t, hdCam, testTimings(), config.Recording{DurationMinutes: 5, Quality: core.QualityHD})
	go s.Run()
	defer stopAndWait(t, s)

	waitFor(t, "recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	h.gw.CloseStream(hdCam.ID, 7)
	waitFor(t, "stream closed status", func() bool { return h.sink.count(hdCam.ID, "Video stream closed (code 7)") == 1 })

	if s.State() != Recording {
		t.Errorf("state = %s", s.State())
	}
	if n := h.gw.Count("Connect", hdCam.ID); n != 1 {
		t.Errorf("connects = %d", n)
	}
}

func TestSession_CamerasAreIndependent(t *testing.T) {
	stuck := core.CameraDescriptor{ID: "cam-stuck", Name: "Stuck"}
	h := newHarness()
	h.gw.Block(stuck.ID)

	rec := config.Recording{DurationMinutes: 5, Quality: core.QualityHD}
	a := h.session(t, stuck, testTimings(), rec)
	b := h.session(t, hdCam, testTimings(), rec)
	go a.Run()
	go b.Run()

	waitFor(t, "healthy camera recording", func() bool { return h.sink.count(hdCam.ID, "Recording to") == 1 })
	if a.State() != Connecting {
		t.Errorf("stuck camera state = %s", a.State())
	}

	a.Stop()
	h.gw.Unblock(stuck.ID)
	stopAndWait(t, a)
	stopAndWait(t, b)
}

func TestSession_EmptyNameUsesCameraID(t *testing.T) {
	s := New(core.CameraDescriptor{ID: "42"}, Options{})
	if s.Name() != "camera_42" {
		t.Errorf("name = %q", s.Name())
	}
}
