// internal/storage/archive.go
package storage

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type ArchiveOptions struct {
	// BasePath é a raiz local das gravações; a chave do objeto é o caminho relativo a ela.
	BasePath string
	// Prefix opcional da chave (ex.: hostname).
	Prefix      string
	DeleteLocal bool

	QueueSize  int
	Attempts   int
	RetryDelay time.Duration
	Logger     *log.Logger
}

type job struct {
	cameraID string
	path     string
}

// Archive envia para o object store cada gravação concluída, fora do caminho
// das sessões: Enqueue nunca bloqueia.
type Archive struct {
	up   Uploader
	opts ArchiveOptions
	jobs chan job

	mu       sync.Mutex
	uploaded uint64
	failed   uint64
	dropped  uint64
}

func NewArchive(up Uploader, opts ArchiveOptions) *Archive {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Archive{
		up:   up,
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
}

// Enqueue tem a assinatura de session.Options.OnFileClosed.
func (a *Archive) Enqueue(cameraID, path string) {
	select {
	case a.jobs <- job{cameraID: cameraID, path: path}:
	default:
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
		a.opts.Logger.Printf("[archive] fila cheia, %s fica só no disco", path)
	}
}

// Run consome a fila até o ctx acabar. O que sobrar na fila fica só no disco.
func (a *Archive) Run(ctx context.Context) {
	a.opts.Logger.Printf("[archive] iniciado (delete_local=%t)", a.opts.DeleteLocal)
	for {
		select {
		case <-ctx.Done():
			a.opts.Logger.Printf("[archive] encerrado (%d na fila)", len(a.jobs))
			return
		case j := <-a.jobs:
			a.upload(ctx, j)
		}
	}
}

func (a *Archive) upload(ctx context.Context, j job) {
	key := a.Key(j.path)
	for attempt := 1; attempt <= a.opts.Attempts; attempt++ {
		url, err := a.up.UploadFile(ctx, key, j.path, "video/mp4")
		if err == nil {
			a.mu.Lock()
			a.uploaded++
			a.mu.Unlock()
			a.opts.Logger.Printf("[archive] camera %s: %s -> %s", j.cameraID, filepath.Base(j.path), url)
			if a.opts.DeleteLocal {
				if err := os.Remove(j.path); err != nil {
					a.opts.Logger.Printf("[archive] erro ao remover %s: %v", j.path, err)
				}
			}
			return
		}

		a.opts.Logger.Printf("[archive] tentativa %d/%d falhou para %s: %v", attempt, a.opts.Attempts, j.path, err)
		if attempt == a.opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.opts.RetryDelay):
		}
	}
	a.mu.Lock()
	a.failed++
	a.mu.Unlock()
}

// Key devolve a chave do objeto para um arquivo local: <prefix>/<camera>/<arquivo>.
func (a *Archive) Key(path string) string {
	rel, err := filepath.Rel(a.opts.BasePath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path))
	}
	key := filepath.ToSlash(rel)
	if p := strings.Trim(a.opts.Prefix, "/"); p != "" {
		key = p + "/" + key
	}
	return key
}

// Stats devolve os contadores (enviados, falhos, descartados).
func (a *Archive) Stats() (uploaded, failed, dropped uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uploaded, a.failed, a.dropped
}
