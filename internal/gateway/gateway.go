// internal/gateway/gateway.go
package gateway

import (
	"context"

	"github.com/sua-org/cam-recorder/internal/core"
)

// Gateway abstrai a biblioteca externa que fala com as câmeras.
//
// Os métodos bloqueiam até a conclusão da operação no dispositivo; quem
// precisa de conclusão assíncrona (a sessão) roda cada chamada numa goroutine.
// Nenhum método oferece cancelamento real da operação no dispositivo: o ctx
// só limita quanto tempo esperamos pela resposta.
type Gateway interface {
	// Discover lista a frota associada à conta.
	Discover(ctx context.Context) ([]core.CameraDescriptor, error)

	Connect(ctx context.Context, cameraID string) error

	// StartPreview abre o stream ao vivo. onClosed é chamado (fora de ordem,
	// a qualquer momento) quando o dispositivo fecha o stream.
	StartPreview(ctx context.Context, cameraID, streamID string, onClosed func(code int)) error
	StopPreview(ctx context.Context, cameraID string) error

	// StartRecording grava o preview ativo em filePath. onInterrupt recebe
	// code>0 quando a gravação terminou bem e code<=0 quando falhou.
	StartRecording(ctx context.Context, cameraID, filePath string, onInterrupt func(code int)) error
	StopRecording(ctx context.Context, cameraID string) error

	// Release libera conexão e preview da câmera. Síncrono e idempotente.
	Release(cameraID string)
}

// Authenticator é implementado por gateways que exigem login antes da descoberta.
type Authenticator interface {
	Login(ctx context.Context) error
}
