// Package gatewaytest tem um Gateway em memória para testes de sessão e supervisor.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sua-org/cam-recorder/internal/core"
	"github.com/sua-org/cam-recorder/internal/gateway"
)

// Call é uma chamada registrada pelo Fake.
type Call struct {
	Method   string
	CameraID string
	Arg      string // streamID ou filePath
}

// Fake é um gateway.Gateway programável e seguro para uso concorrente.
//
// Os campos *Err são consultados a cada chamada; nil = sucesso. Block, quando
// não nil, faz o método esperar até receber de Block ou o ctx acabar.
// RecordStartInterrupt, se devolver ok, entrega onInterrupt(code) antes de
// StartRecording retornar, como o bridge pode fazer.
type Fake struct {
	mu sync.Mutex

	Cameras []core.CameraDescriptor

	LoginErr       func(n int) error
	DiscoverErr    func(n int) error
	ConnectErr     func(cameraID string, n int) error
	PreviewErr     func(cameraID string, n int) error
	RecordStartErr func(cameraID string, n int) error
	RecordStopErr  func(cameraID string, n int) error
	ConnectBlock   map[string]chan struct{}
	OnCall         func(Call)

	RecordStartInterrupt func(cameraID string, n int) (code int, ok bool)

	interrupts      map[string]func(int)
	streamCallbacks map[string]func(int)
	calls           []Call
	counts          map[string]int
	released        map[string]int
}

var (
	_ gateway.Gateway       = (*Fake)(nil)
	_ gateway.Authenticator = (*Fake)(nil)
)

func New(cams ...core.CameraDescriptor) *Fake {
	return &Fake{
		Cameras:         cams,
		ConnectBlock:    make(map[string]chan struct{}),
		interrupts:      make(map[string]func(int)),
		streamCallbacks: make(map[string]func(int)),
		counts:          make(map[string]int),
		released:        make(map[string]int),
	}
}

// record registra a chamada e devolve quantas vezes (method, id) já foi chamado, contando esta.
func (f *Fake) record(c Call) int {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	key := c.Method + "/" + c.CameraID
	f.counts[key]++
	n := f.counts[key]
	hook := f.OnCall
	f.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return n
}

func (f *Fake) Login(ctx context.Context) error {
	n := f.record(Call{Method: "Login"})
	if f.LoginErr != nil {
		if err := f.LoginErr(n); err != nil {
			return fmt.Errorf("%w: %v", gateway.ErrLogin, err)
		}
	}
	return nil
}

func (f *Fake) Discover(ctx context.Context) ([]core.CameraDescriptor, error) {
	n := f.record(Call{Method: "Discover"})
	if f.DiscoverErr != nil {
		if err := f.DiscoverErr(n); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrDiscovery, err)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.CameraDescriptor, len(f.Cameras))
	copy(out, f.Cameras)
	return out, nil
}

func (f *Fake) Connect(ctx context.Context, cameraID string) error {
	n := f.record(Call{Method: "Connect", CameraID: cameraID})
	f.mu.Lock()
	block := f.ConnectBlock[cameraID]
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", gateway.ErrConnect, ctx.Err())
		}
	}
	if f.ConnectErr != nil {
		if err := f.ConnectErr(cameraID, n); err != nil {
			return fmt.Errorf("%w: %v", gateway.ErrConnect, err)
		}
	}
	return nil
}

func (f *Fake) StartPreview(ctx context.Context, cameraID, streamID string, onClosed func(code int)) error {
	n := f.record(Call{Method: "StartPreview", CameraID: cameraID, Arg: streamID})
	if f.PreviewErr != nil {
		if err := f.PreviewErr(cameraID, n); err != nil {
			return fmt.Errorf("%w: %v", gateway.ErrPreview, err)
		}
	}
	f.mu.Lock()
	f.streamCallbacks[cameraID] = onClosed
	f.mu.Unlock()
	return nil
}

func (f *Fake) StopPreview(ctx context.Context, cameraID string) error {
	f.record(Call{Method: "StopPreview", CameraID: cameraID})
	return nil
}

func (f *Fake) StartRecording(ctx context.Context, cameraID, filePath string, onInterrupt func(code int)) error {
	n := f.record(Call{Method: "StartRecording", CameraID: cameraID, Arg: filePath})
	if f.RecordStartErr != nil {
		if err := f.RecordStartErr(cameraID, n); err != nil {
			return fmt.Errorf("%w: %v", gateway.ErrRecordStart, err)
		}
	}
	f.mu.Lock()
	f.interrupts[cameraID] = onInterrupt
	f.mu.Unlock()
	if f.RecordStartInterrupt != nil {
		if code, ok := f.RecordStartInterrupt(cameraID, n); ok {
			onInterrupt(code)
		}
	}
	return nil
}

func (f *Fake) StopRecording(ctx context.Context, cameraID string) error {
	n := f.record(Call{Method: "StopRecording", CameraID: cameraID})
	if f.RecordStopErr != nil {
		if err := f.RecordStopErr(cameraID, n); err != nil {
			return fmt.Errorf("%w: %v", gateway.ErrRecordStop, err)
		}
	}
	return nil
}

func (f *Fake) Release(cameraID string) {
	f.record(Call{Method: "Release", CameraID: cameraID})
	f.mu.Lock()
	f.released[cameraID]++
	f.mu.Unlock()
}

// Interrupt entrega onInterrupt(code) da última gravação iniciada na câmera.
// Devolve false se nunca houve gravação.
func (f *Fake) Interrupt(cameraID string, code int) bool {
	f.mu.Lock()
	cb := f.interrupts[cameraID]
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(code)
	return true
}

// CloseStream entrega onClosed(code) do último preview.
func (f *Fake) CloseStream(cameraID string, code int) bool {
	f.mu.Lock()
	cb := f.streamCallbacks[cameraID]
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(code)
	return true
}

// Unblock libera um Connect bloqueado em ConnectBlock[cameraID].
func (f *Fake) Unblock(cameraID string) {
	f.mu.Lock()
	ch := f.ConnectBlock[cameraID]
	delete(f.ConnectBlock, cameraID)
	f.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Block faz os próximos Connect da câmera esperarem até Unblock.
func (f *Fake) Block(cameraID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectBlock[cameraID] = make(chan struct{})
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count devolve quantas vezes method foi chamado para cameraID ("" para Login/Discover).
func (f *Fake) Count(method, cameraID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[method+"/"+cameraID]
}

// Paths lista, em ordem, os arquivos pedidos em StartRecording para a câmera.
func (f *Fake) Paths(cameraID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Method == "StartRecording" && c.CameraID == cameraID {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Streams lista os streamIDs pedidos em StartPreview para a câmera.
func (f *Fake) Streams(cameraID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Method == "StartPreview" && c.CameraID == cameraID {
			out = append(out, c.Arg)
		}
	}
	return out
}

func (f *Fake) Released(cameraID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[cameraID]
}
