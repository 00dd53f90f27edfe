// internal/status/http.go
package status

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sua-org/cam-recorder/internal/config"
)

// ConfigStore é o pedaço de config.Store exposto em /api/config.
type ConfigStore interface {
	Snapshot() config.Recording
	Apply(config.Update) (config.Recording, error)
}

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRouter monta a API de status. store e registry podem ser nil.
func NewRouter(board *Board, store ConfigStore, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"summary": board.Summary(),
			"cameras": board.Cameras(),
		})
	})

	r.GET("/api/cameras/:id", func(c *gin.Context) {
		cam, ok := board.Camera(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, errorResponse{
				Error:     "camera_not_found",
				Message:   "câmera não encontrada",
				Timestamp: time.Now(),
			})
			return
		}
		c.JSON(http.StatusOK, cam)
	})

	if store != nil {
		r.GET("/api/config", func(c *gin.Context) {
			c.JSON(http.StatusOK, store.Snapshot())
		})
		r.PATCH("/api/config", func(c *gin.Context) {
			var u config.Update
			if err := c.ShouldBindJSON(&u); err != nil {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_payload", Message: err.Error(), Timestamp: time.Now()})
				return
			}
			rec, err := store.Apply(u)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "invalid_config", Message: err.Error(), Timestamp: time.Now()})
				return
			}
			c.JSON(http.StatusOK, rec)
		})
	}

	if registry != nil {
		h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{ErrorLog: log.Default()})
		r.GET("/metrics", gin.WrapH(h))
	}

	return r
}

// Serve roda o servidor HTTP até o ctx acabar.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[status] API HTTP em %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[status] shutdown forçado: %v", err)
	}
	return nil
}
