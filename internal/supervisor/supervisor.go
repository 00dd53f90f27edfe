// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sua-org/cam-recorder/internal/config"
	"github.com/sua-org/cam-recorder/internal/core"
	"github.com/sua-org/cam-recorder/internal/gateway"
	"github.com/sua-org/cam-recorder/internal/session"
	"github.com/sua-org/cam-recorder/internal/status"
)

// FleetSink recebe o status das câmeras e o texto de nível de frota.
type FleetSink interface {
	status.Sink
	SetFleet(text string)
}

type Options struct {
	Gateway  gateway.Gateway
	Config   config.Provider
	Sink     FleetSink
	BasePath string
	Logger   *log.Logger

	// Timings das sessões; zero = session.DefaultTimings()
	Timings session.Timings

	// RetryDelay separa tentativas de login e de descoberta.
	RetryDelay time.Duration
	// ShutdownGrace limita a espera pelo teardown das sessões no shutdown.
	ShutdownGrace time.Duration

	OnFileClosed func(cameraID, path string)
}

// Supervisor descobre a frota e mantém uma sessão de gravação por câmera.
// O registro só cresce: câmera que some do bridge continua com sua sessão.
type Supervisor struct {
	opts Options
	log  *log.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	stopping bool
}

func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 15 * time.Second
	}
	if opts.Timings == (session.Timings{}) {
		opts.Timings = session.DefaultTimings()
	}
	return &Supervisor{
		opts:     opts,
		log:      opts.Logger,
		sessions: make(map[string]*session.Session),
	}
}

// Run faz login (se o gateway exigir), descobre a frota uma vez e cria as
// sessões. Bloqueia até o ctx acabar; então para todas as sessões.
func (s *Supervisor) Run(ctx context.Context) error {
	if auth, ok := s.opts.Gateway.(gateway.Authenticator); ok {
		if !s.login(ctx, auth) {
			s.log.Printf("[supervisor] context canceled antes do login")
			return nil
		}
	}

	cams, ok := s.discover(ctx)
	if ok {
		s.startSessions(cams)
	}

	<-ctx.Done()
	s.log.Printf("[supervisor] context canceled, stopping all sessions")
	s.stopAll()
	return nil
}

func (s *Supervisor) login(ctx context.Context, auth gateway.Authenticator) bool {
	for {
		callCtx, cancel := s.callContext(ctx)
		err := auth.Login(callCtx)
		cancel()
		if err == nil {
			s.opts.Sink.SetFleet("Logged in")
			return true
		}

		s.log.Printf("[supervisor] login falhou: %v (nova tentativa em %s)", err, s.opts.RetryDelay)
		s.opts.Sink.SetFleet("Login failed: " + err.Error())
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.opts.RetryDelay):
		}
	}
}

func (s *Supervisor) discover(ctx context.Context) ([]core.CameraDescriptor, bool) {
	for {
		s.opts.Sink.SetFleet("Discovering cameras")
		callCtx, cancel := s.callContext(ctx)
		cams, err := s.opts.Gateway.Discover(callCtx)
		cancel()
		if err == nil {
			s.log.Printf("[supervisor] %d câmeras encontradas", len(cams))
			s.opts.Sink.SetFleet(fmt.Sprintf("Found %d cameras", len(cams)))
			return cams, true
		}

		s.log.Printf("[supervisor] descoberta falhou: %v (nova tentativa em %s)", err, s.opts.RetryDelay)
		s.opts.Sink.SetFleet("Discovery failed: " + err.Error())
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(s.opts.RetryDelay):
		}
	}
}

func (s *Supervisor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.opts.Timings.CallTimeout; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// startSessions cria sessões só para ids ainda não registrados.
func (s *Supervisor) startSessions(cams []core.CameraDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return
	}

	started := 0
	for _, cam := range cams {
		if _, ok := s.sessions[cam.ID]; ok {
			continue
		}
		sess := session.New(cam, session.Options{
			BasePath:     s.opts.BasePath,
			Gateway:      s.opts.Gateway,
			Config:       s.opts.Config,
			Sink:         s.opts.Sink,
			Logger:       s.log,
			Timings:      s.opts.Timings,
			OnFileClosed: s.opts.OnFileClosed,
		})
		s.sessions[cam.ID] = sess
		started++
		s.log.Printf("[supervisor] starting session %s (id=%s)", sess.Name(), cam.ID)
		go sess.Run()
	}

	if started > 0 {
		s.log.Printf("[supervisor] %d sessões novas, %d no total", started, len(s.sessions))
	}
}

// Sessions devolve as sessões registradas, ordenadas por id.
func (s *Supervisor) Sessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID() < out[j].CameraID() })
	return out
}

// stopAll pede parada a todas as sessões e espera o teardown até ShutdownGrace.
func (s *Supervisor) stopAll() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	sessions := s.Sessions()
	for _, sess := range sessions {
		sess.Stop()
	}

	deadline := time.NewTimer(s.opts.ShutdownGrace)
	defer deadline.Stop()

	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-deadline.C:
			pending := countPending(sessions)
			s.log.Printf("[supervisor] %d sessões não terminaram em %s", pending, s.opts.ShutdownGrace)
			s.opts.Sink.SetFleet("Stopped")
			return
		}
	}
	s.log.Printf("[supervisor] %d sessões encerradas", len(sessions))
	s.opts.Sink.SetFleet("Stopped")
}

func countPending(sessions []*session.Session) int {
	n := 0
	for _, sess := range sessions {
		select {
		case <-sess.Done():
		default:
			n++
		}
	}
	return n
}
