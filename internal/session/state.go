// internal/session/state.go
package session

// State é o estado da máquina de gravação de uma câmera.
type State int

const (
	Idle State = iota
	Connecting
	Previewing
	Recording
	RotatingStop
	RotatingWait
	// Restarting: a gravação terminou normalmente e a próxima começa após o atraso
	Restarting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Previewing:
		return "previewing"
	case Recording:
		return "recording"
	case RotatingStop:
		return "rotating_stop"
	case RotatingWait:
		return "rotating_wait"
	case Restarting:
		return "restarting"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// recordingVariant: estados em que existe um arquivo ativo.
func (s State) recordingVariant() bool {
	return s == Recording || s == RotatingStop
}

// Event é a união de tudo que a sessão processa, na ordem de chegada.
type Event interface {
	isEvent()
}

type (
	eventStart struct{}

	ConnectResult struct{ Err error }
	PreviewResult struct{ Err error }

	RecordStartResult struct{ Err error }
	RecordStopResult  struct{ Err error }

	// Interruption vem do gateway sem ser solicitada. Epoch identifica a
	// gravação a que se refere.
	Interruption struct {
		Epoch int
		Code  int
	}

	RotationFire struct{ Epoch int }

	StopRequested struct{}

	BackoffElapsed struct{}
	RestartElapsed struct{}
	GapElapsed     struct{}

	// StreamClosed só é registrado; não muda estado.
	StreamClosed struct{ Code int }
)

func (eventStart) isEvent()        {}
func (ConnectResult) isEvent()     {}
func (PreviewResult) isEvent()     {}
func (RecordStartResult) isEvent() {}
func (RecordStopResult) isEvent()  {}
func (Interruption) isEvent()      {}
func (RotationFire) isEvent()      {}
func (StopRequested) isEvent()     {}
func (BackoffElapsed) isEvent()    {}
func (RestartElapsed) isEvent()    {}
func (GapElapsed) isEvent()        {}
func (StreamClosed) isEvent()      {}

type actionKind int

const (
	actConnect actionKind = iota
	actReleasePartial
	actStartPreview
	actStartRecording
	actStopRecording
	actStopPreview
	actArmRotation
	actCancelRotation
	actBackoff
	actRestartDelay
	actGap
	actCancelTimer
	actFinishFile
	actTeardown
)

func (k actionKind) String() string {
	return [...]string{
		"connect", "release_partial", "start_preview", "start_recording",
		"stop_recording", "stop_preview", "arm_rotation", "cancel_rotation", "backoff",
		"restart_delay", "gap", "cancel_timer", "finish_file", "teardown",
	}[k]
}

type action struct {
	kind  actionKind
	epoch int

	// teardown: parar a gravação ativa antes do release
	stopRecording bool
	// motivo legível, usado em status/log
	reason string
}

// machine é a parte pura do estado da sessão.
type machine struct {
	state         State
	stopRequested bool

	// busy: há uma chamada ao gateway em andamento (no máximo uma)
	busy bool
	// recording: o gateway confirmou a gravação atual e ela não terminou
	recording bool
	// epoch da gravação corrente; muda a cada record-start
	epoch int

	// interrupção da gravação corrente recebida antes do resultado do
	// record-start; aplicada quando ele chegar
	pendingInterrupt bool
	pendingCode      int
}

// transition é a tabela de estados inteira: (estado, evento) -> (estado, ações).
// Não faz I/O.
func transition(m machine, ev Event) (machine, []action) {
	if m.state == Stopped {
		return m, nil
	}

	switch e := ev.(type) {
	case eventStart:
		if m.state != Idle {
			return m, nil
		}
		if m.stopRequested {
			return stop(m, nil)
		}
		m.state = Connecting
		m.busy = true
		return m, []action{{kind: actConnect}}

	case StopRequested:
		m.stopRequested = true
		if m.busy {
			// stop é consultivo: espera a chamada em andamento terminar
			return m, nil
		}
		return stop(m, nil)

	case ConnectResult:
		if m.state != Connecting || !m.busy {
			return m, nil
		}
		m.busy = false
		if e.Err != nil {
			pre := []action{{kind: actReleasePartial, reason: e.Err.Error()}}
			if m.stopRequested {
				return stop(m, pre)
			}
			return m, append(pre, action{kind: actBackoff, reason: "connect: " + e.Err.Error()})
		}
		if m.stopRequested {
			return stop(m, nil)
		}
		m.state = Previewing
		m.busy = true
		return m, []action{{kind: actStartPreview}}

	case BackoffElapsed:
		if m.state != Connecting || m.busy {
			return m, nil
		}
		m.busy = true
		return m, []action{{kind: actConnect}}

	case PreviewResult:
		if m.state != Previewing || !m.busy {
			return m, nil
		}
		m.busy = false
		if m.stopRequested {
			return stop(m, nil)
		}
		if e.Err != nil {
			m.state = Connecting
			return m, []action{{kind: actBackoff, reason: "preview: " + e.Err.Error()}}
		}
		m.state = Recording
		return startRecording(m)

	case RecordStartResult:
		if m.state != Recording || !m.busy {
			return m, nil
		}
		m.busy = false
		pending, code := m.pendingInterrupt, m.pendingCode
		m.pendingInterrupt, m.pendingCode = false, 0
		if e.Err != nil {
			m.recording = false
			if m.stopRequested {
				return stop(m, nil)
			}
			// o preview continua aberto; fecha antes de reconectar
			m.state = Connecting
			return m, []action{
				{kind: actStopPreview},
				{kind: actBackoff, reason: "record start: " + e.Err.Error()},
			}
		}
		m.recording = true
		if pending {
			return interrupted(m, code)
		}
		if m.stopRequested {
			return stop(m, nil)
		}
		return m, []action{{kind: actArmRotation, epoch: m.epoch}}

	case Interruption:
		if m.state != Recording || e.Epoch != m.epoch {
			return m, nil
		}
		if m.busy {
			// o bridge pode notificar antes de responder o record-start
			m.pendingInterrupt, m.pendingCode = true, e.Code
			return m, nil
		}
		if !m.recording {
			return m, nil
		}
		return interrupted(m, e.Code)

	case RestartElapsed:
		if m.state != Restarting || m.busy {
			return m, nil
		}
		m.state = Recording
		return startRecording(m)

	case RotationFire:
		if m.state != Recording || m.busy || !m.recording || e.Epoch != m.epoch {
			return m, nil
		}
		m.state = RotatingStop
		m.busy = true
		return m, []action{{kind: actStopRecording}}

	case RecordStopResult:
		if m.state != RotatingStop || !m.busy {
			return m, nil
		}
		m.busy = false
		m.recording = false
		var acts []action
		if e.Err == nil {
			acts = append(acts, action{kind: actFinishFile})
		}
		if m.stopRequested {
			return stop(m, acts)
		}
		// sucesso ou falha seguem igual: a rotação nunca pode travar
		m.state = RotatingWait
		return m, append(acts, action{kind: actGap})

	case GapElapsed:
		if m.state != RotatingWait || m.busy {
			return m, nil
		}
		m.state = Recording
		return startRecording(m)
	}

	return m, nil
}

// interrupted trata o fim não solicitado da gravação corrente: code > 0 é
// término normal (arquivo salvo), o resto é falha.
func interrupted(m machine, code int) (machine, []action) {
	m.recording = false
	if code > 0 {
		acts := []action{{kind: actCancelRotation}, {kind: actFinishFile}}
		if m.stopRequested {
			return stop(m, acts)
		}
		m.state = Restarting
		return m, append(acts, action{kind: actRestartDelay})
	}
	acts := []action{{kind: actCancelRotation}}
	if m.stopRequested {
		return stop(m, acts)
	}
	m.state = Connecting
	return m, append(acts,
		action{kind: actStopPreview},
		action{kind: actBackoff, reason: "recording interrupted"},
	)
}

func startRecording(m machine) (machine, []action) {
	m.epoch++
	m.busy = true
	m.pendingInterrupt, m.pendingCode = false, 0
	return m, []action{{kind: actStartRecording, epoch: m.epoch}}
}

// stop leva a máquina a Stopped. Só é chamado sem chamada em andamento.
func stop(m machine, pre []action) (machine, []action) {
	acts := append(pre,
		action{kind: actCancelRotation},
		action{kind: actCancelTimer},
		action{kind: actTeardown, stopRecording: m.recording},
	)
	m.state = Stopped
	m.recording = false
	m.stopRequested = true
	m.pendingInterrupt, m.pendingCode = false, 0
	return m, acts
}
