// internal/status/board.go
package status

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Update é o que uma sessão reporta. Campos vazios não apagam o valor anterior,
// exceto FilePath, que acompanha o estado.
type Update struct {
	CameraID string
	Name     string
	State    string
	Text     string
	FilePath string

	// contadores
	Retry    bool
	FileDone bool
}

// Sink recebe status das sessões. Consultivo e eventualmente consistente.
type Sink interface {
	Report(Update)
}

// CameraStatus é a visão atual de uma câmera.
type CameraStatus struct {
	CameraID    string    `json:"camera_id"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Text        string    `json:"text"`
	FilePath    string    `json:"file_path,omitempty"`
	StateSince  time.Time `json:"state_since"`
	UpdatedAt   time.Time `json:"updated_at"`
	Retries     uint64    `json:"retries"`
	FilesClosed uint64    `json:"files_closed"`
}

// Summary é o resumo da frota.
type Summary struct {
	Text      string         `json:"text"`
	Cameras   int            `json:"cameras"`
	ByState   map[string]int `json:"by_state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Board guarda o último status de cada câmera e o texto da frota.
type Board struct {
	mu       sync.Mutex
	cameras  map[string]*CameraStatus
	fleet    string
	fleetAt  time.Time
	now      func() time.Time
	onChange func(CameraStatus)
}

func NewBoard() *Board {
	return &Board{
		cameras: make(map[string]*CameraStatus),
		now:     time.Now,
	}
}

// OnChange registra um hook chamado (fora do lock) a cada update.
func (b *Board) OnChange(fn func(CameraStatus)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Board) Report(u Update) {
	b.mu.Lock()
	now := b.now().UTC()
	c, ok := b.cameras[u.CameraID]
	if !ok {
		c = &CameraStatus{CameraID: u.CameraID, StateSince: now}
		b.cameras[u.CameraID] = c
	}
	if u.Name != "" {
		c.Name = u.Name
	}
	if u.State != "" && u.State != c.State {
		c.State = u.State
		c.StateSince = now
	}
	if u.Text != "" {
		c.Text = u.Text
	}
	c.FilePath = u.FilePath
	if u.Retry {
		c.Retries++
	}
	if u.FileDone {
		c.FilesClosed++
	}
	c.UpdatedAt = now
	snap := *c
	hook := b.onChange
	b.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
}

// SetFleet registra o texto de nível de frota ("Found 3 cameras", "Login failed: ...").
func (b *Board) SetFleet(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fleet = text
	b.fleetAt = b.now().UTC()
}

// Camera devolve uma cópia do status da câmera.
func (b *Board) Camera(id string) (CameraStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cameras[id]
	if !ok {
		return CameraStatus{}, false
	}
	return *c, true
}

// Cameras devolve cópias ordenadas por id.
func (b *Board) Cameras() []CameraStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CameraStatus, 0, len(b.cameras))
	for _, c := range b.cameras {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

func (b *Board) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Summary{
		Cameras:   len(b.cameras),
		ByState:   make(map[string]int),
		UpdatedAt: b.fleetAt,
	}
	for _, c := range b.cameras {
		s.ByState[c.State]++
		if c.UpdatedAt.After(s.UpdatedAt) {
			s.UpdatedAt = c.UpdatedAt
		}
	}

	recording := s.ByState["recording"] + s.ByState["rotating_stop"] +
		s.ByState["rotating_wait"] + s.ByState["restarting"]
	switch {
	case len(b.cameras) == 0 && b.fleet != "":
		s.Text = b.fleet
	case len(b.cameras) == 0:
		s.Text = "No cameras"
	default:
		s.Text = fmt.Sprintf("Recording %d/%d cameras", recording, len(b.cameras))
		if b.fleet != "" {
			s.Text += " (" + b.fleet + ")"
		}
	}
	return s
}
