// internal/config/store.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/sua-org/cam-recorder/internal/core"
)

// Store guarda a configuração de gravação que pode mudar em runtime.
// Mudanças valem para o próximo ciclo, nunca para a gravação em curso.
type Store struct {
	mu   sync.RWMutex
	cur  Recording
	path string
}

// NewStore cria o store. Se path != "", cada mudança é persistida nele.
func NewStore(initial Recording, path string) *Store {
	return &Store{cur: initial, path: path}
}

func (s *Store) Snapshot() Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update é o payload aceito em <base>/config/set. Campos ausentes não mudam.
type Update struct {
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Quality         *string `json:"quality,omitempty"`
}

// Apply valida e aplica a mudança, devolvendo o novo snapshot.
func (s *Store) Apply(u Update) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	if u.DurationMinutes != nil {
		next.DurationMinutes = *u.DurationMinutes
	}
	if u.Quality != nil {
		q := core.Quality(strings.ToUpper(strings.TrimSpace(*u.Quality)))
		if !q.Valid() {
			return s.cur, fmt.Errorf("quality inválida: %q", *u.Quality)
		}
		next.Quality = q
	}
	if err := next.Validate(); err != nil {
		return s.cur, err
	}
	if next == s.cur {
		return next, nil
	}

	if s.path != "" {
		if err := writeRecording(s.path, next); err != nil {
			// mantém o valor novo em memória mesmo se o disco falhar
			log.Printf("[config] erro ao persistir em %s: %v", s.path, err)
		}
	}
	log.Printf("[config] atualizado: duração=%dmin qualidade=%s (vale a partir do próximo ciclo)",
		next.DurationMinutes, next.Quality)
	s.cur = next
	return next, nil
}

// ApplyJSON decodifica e aplica um payload de controle.
func (s *Store) ApplyJSON(payload []byte) (Recording, error) {
	var u Update
	if err := json.Unmarshal(payload, &u); err != nil {
		return s.Snapshot(), fmt.Errorf("payload inválido: %w", err)
	}
	return s.Apply(u)
}
