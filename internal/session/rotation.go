// internal/session/rotation.go
package session

import (
	"time"
)

// RotationScheduler é o timer one-shot que dispara a rotação do arquivo.
// Só é usado pela goroutine da sessão; o disparo chega como evento.
type RotationScheduler struct {
	timer *time.Timer
	epoch int
}

// Arm substitui qualquer timer anterior e dispara fire(epoch) após d.
func (r *RotationScheduler) Arm(d time.Duration, epoch int, fire func(epoch int)) {
	r.Cancel()
	r.epoch = epoch
	r.timer = time.AfterFunc(d, func() { fire(epoch) })
}

// Cancel invalida o timer. Um disparo já em voo é descartado pelo epoch.
func (r *RotationScheduler) Cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *RotationScheduler) Armed() bool {
	return r.timer != nil
}
