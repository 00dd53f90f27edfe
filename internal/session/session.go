// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sua-org/cam-recorder/internal/config"
	"github.com/sua-org/cam-recorder/internal/core"
	"github.com/sua-org/cam-recorder/internal/gateway"
	"github.com/sua-org/cam-recorder/internal/quality"
	"github.com/sua-org/cam-recorder/internal/status"
)

// Timings são os atrasos fixos da máquina. Não escalam e não têm limite de tentativas.
type Timings struct {
	RetryBackoff time.Duration // falha de connect/preview/record-start
	RestartDelay time.Duration // após término normal da gravação
	RotationGap  time.Duration // entre stop e o próximo record-start na rotação
	Minute       time.Duration // unidade de durationMinutes

	// CallTimeout limita a espera por uma chamada ao gateway (0 = sem limite).
	CallTimeout     time.Duration
	TeardownTimeout time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		RetryBackoff:    10 * time.Second,
		RestartDelay:    2 * time.Second,
		RotationGap:     3 * time.Second,
		Minute:          time.Minute,
		CallTimeout:     60 * time.Second,
		TeardownTimeout: 5 * time.Second,
	}
}

// Options são os colaboradores de uma sessão.
type Options struct {
	BasePath string
	Gateway  gateway.Gateway
	Config   config.Provider
	Sink     status.Sink
	Logger   *log.Logger
	Timings  Timings
	Now      func() time.Time

	// OnFileClosed recebe cada arquivo concluído (rotação ou término normal).
	OnFileClosed func(cameraID, path string)
}

// Session é a máquina de estados de gravação de uma câmera. Todo o estado
// mutável pertence à goroutine de Run; o resto só conversa por eventos.
type Session struct {
	cam  core.CameraDescriptor
	name string
	opts Options

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	state    atomic.Int32

	// daqui pra baixo: só a goroutine de Run
	m           machine
	filePath    string
	closingPath string
	startedAt   time.Time
	streamID    string
	rotation    RotationScheduler
	timer       *time.Timer
	released    bool

	// heldPath: arquivo fechado ainda não entregue ao OnFileClosed. Um
	// record-start no mesmo minuto reusa o nome e o bridge volta a gravar nele.
	heldPath string
}

func New(cam core.CameraDescriptor, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	return &Session{
		cam:    cam,
		name:   Sanitize(cam.Name, cam.ID),
		opts:   opts,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) CameraID() string { return s.cam.ID }
func (s *Session) Name() string     { return s.name }

// State é um espelho somente-leitura do estado da máquina.
func (s *Session) State() State { return State(s.state.Load()) }

// Done fecha quando a sessão chega em Stopped e liberou os recursos.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop pede a parada. Não interrompe a chamada em andamento; a sessão para
// assim que ela terminar e nenhuma gravação nova é iniciada.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { s.post(StopRequested{}) })
}

// Run dirige a câmera até Stopped. Bloqueia; o supervisor chama em goroutine própria.
func (s *Session) Run() {
	defer close(s.done)
	s.logf("starting session (id=%s)", s.cam.ID)
	s.dispatch(eventStart{})
	for s.m.state != Stopped {
		s.dispatch(<-s.events)
	}
	s.logf("session stopped")
}

func (s *Session) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) dispatch(ev Event) {
	if sc, ok := ev.(StreamClosed); ok {
		s.logf("video stream closed, code=%d", sc.Code)
		s.report(fmt.Sprintf("Video stream closed (code %d)", sc.Code), false)
		return
	}

	prev := s.m.state
	next, actions := transition(s.m, ev)
	s.m = next
	s.state.Store(int32(next.state))

	if prev != next.state {
		s.logf("%s -> %s", prev, next.state)
	}
	if prev.recordingVariant() && !next.state.recordingVariant() {
		// o arquivo deixa de ser o ativo; finishFile ainda pode precisar dele
		s.closingPath, s.filePath = s.filePath, ""
	}
	for _, a := range actions {
		s.execute(a)
	}
	s.closingPath = ""
}

func (s *Session) execute(a action) {
	switch a.kind {
	case actConnect:
		s.report("Connecting", false)
		s.call(func(ctx context.Context) error {
			return s.opts.Gateway.Connect(ctx, s.cam.ID)
		}, func(err error) Event { return ConnectResult{Err: err} })

	case actReleasePartial:
		s.logf("connection failed: %s; releasing controller", a.reason)
		s.opts.Gateway.Release(s.cam.ID)

	case actStartPreview:
		cfg := s.opts.Config.Snapshot()
		s.streamID = quality.Select(s.cam.Capabilities, cfg.Quality)
		s.logf("starting preview, stream=%s quality=%s", s.streamID, cfg.Quality)
		s.report(fmt.Sprintf("Starting preview (stream %s)", s.streamID), false)
		streamID := s.streamID
		s.call(func(ctx context.Context) error {
			return s.opts.Gateway.StartPreview(ctx, s.cam.ID, streamID, func(code int) {
				s.post(StreamClosed{Code: code})
			})
		}, func(err error) Event { return PreviewResult{Err: err} })

	case actStartRecording:
		s.startRecording(a.epoch)

	case actStopRecording:
		s.logf("rotating file %s", filepath.Base(s.filePath))
		s.report("Rotating file", false)
		s.call(func(ctx context.Context) error {
			return s.opts.Gateway.StopRecording(ctx, s.cam.ID)
		}, func(err error) Event { return RecordStopResult{Err: err} })

	case actArmRotation:
		minutes := s.opts.Config.Snapshot().DurationMinutes
		d := time.Duration(minutes) * s.opts.Timings.Minute
		s.rotation.Arm(d, a.epoch, func(epoch int) { s.post(RotationFire{Epoch: epoch}) })
		s.logf("recording to %s, rotation in %d min", s.filePath, minutes)
		s.report("Recording to "+filepath.Base(s.filePath), false)

	case actStopPreview:
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timings.TeardownTimeout)
		if err := s.opts.Gateway.StopPreview(ctx, s.cam.ID); err != nil {
			s.logf("failed to stop preview: %v", err)
		}
		cancel()

	case actCancelRotation:
		s.rotation.Cancel()

	case actBackoff:
		s.logf("%s, retrying in %s", a.reason, s.opts.Timings.RetryBackoff)
		s.report(fmt.Sprintf("Failed (%s), retrying in %s", a.reason, s.opts.Timings.RetryBackoff), true)
		s.after(s.opts.Timings.RetryBackoff, BackoffElapsed{})

	case actRestartDelay:
		s.logf("recording completed, restarting in %s", s.opts.Timings.RestartDelay)
		s.after(s.opts.Timings.RestartDelay, RestartElapsed{})

	case actGap:
		s.after(s.opts.Timings.RotationGap, GapElapsed{})

	case actCancelTimer:
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}

	case actFinishFile:
		s.finishFile()

	case actTeardown:
		s.teardown(a.stopRecording)
	}
}

func (s *Session) startRecording(epoch int) {
	s.startedAt = s.opts.Now()
	path := RecordingPath(s.opts.BasePath, s.name, s.startedAt)
	s.filePath = path
	if s.heldPath != "" && s.heldPath != path {
		s.releaseFile()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logf("cannot create %s: %v", filepath.Dir(path), err)
		// segue o mesmo caminho de uma falha de record-start
		go s.post(RecordStartResult{Err: fmt.Errorf("%w: %v", gateway.ErrRecordStart, err)})
		return
	}

	s.report("Starting recording", false)
	s.call(func(ctx context.Context) error {
		return s.opts.Gateway.StartRecording(ctx, s.cam.ID, path, func(code int) {
			s.post(Interruption{Epoch: epoch, Code: code})
		})
	}, func(err error) Event { return RecordStartResult{Err: err} })
}

func (s *Session) finishFile() {
	path := s.filePath
	if path == "" {
		path = s.closingPath
	}
	s.filePath, s.closingPath = "", ""
	if path == "" {
		return
	}
	s.logf("file closed: %s (%s)", path, s.opts.Now().Sub(s.startedAt).Round(time.Second))
	s.opts.Sink.Report(status.Update{
		CameraID: s.cam.ID,
		Name:     s.name,
		State:    s.m.state.String(),
		FileDone: true,
	})
	if s.heldPath != "" && s.heldPath != path {
		s.releaseFile()
	}
	s.heldPath = path
}

// releaseFile entrega o arquivo retido ao OnFileClosed.
func (s *Session) releaseFile() {
	path := s.heldPath
	s.heldPath = ""
	if path != "" && s.opts.OnFileClosed != nil {
		s.opts.OnFileClosed(s.cam.ID, path)
	}
}

// teardown roda uma vez, na entrada de Stopped.
func (s *Session) teardown(stopRecording bool) {
	if stopRecording {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timings.TeardownTimeout)
		err := s.opts.Gateway.StopRecording(ctx, s.cam.ID)
		cancel()
		if err != nil {
			s.logf("failed to stop recording on shutdown: %v", err)
		} else {
			s.finishFile()
		}
	}
	s.releaseFile()
	if !s.released {
		s.released = true
		s.opts.Gateway.Release(s.cam.ID)
	}
	s.filePath = ""
	s.report("Stopped", false)
}

// call roda a operação do gateway numa goroutine e devolve o resultado como evento.
func (s *Session) call(op func(ctx context.Context) error, result func(error) Event) {
	timeout := s.opts.Timings.CallTimeout
	go func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		s.post(result(op(ctx)))
	}()
}

func (s *Session) after(d time.Duration, ev Event) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, func() { s.post(ev) })
}

func (s *Session) report(text string, retry bool) {
	s.opts.Sink.Report(status.Update{
		CameraID: s.cam.ID,
		Name:     s.name,
		State:    s.m.state.String(),
		Text:     text,
		FilePath: s.filePath,
		Retry:    retry,
	})
}

func (s *Session) logf(format string, args ...interface{}) {
	s.opts.Logger.Printf("[session %s] "+format, append([]interface{}{s.name}, args...)...)
}
