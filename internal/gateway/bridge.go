// internal/gateway/bridge.go
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/sua-org/cam-recorder/internal/config"
	"github.com/sua-org/cam-recorder/internal/core"
)

// Subscriber é o pedaço do cliente MQTT que o bridge usa para receber notificações.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// Bridge fala com o serviço que encapsula o SDK das câmeras: comandos por
// HTTP, notificações assíncronas (fim de gravação, stream fechado) por MQTT
// em <events_topic>/<device_id>/events.
type Bridge struct {
	http *resty.Client
	cfg  config.BridgeConfig
	log  *log.Logger

	mu          sync.Mutex
	onInterrupt map[string]func(int)
	onClosed    map[string]func(int)
}

var (
	_ Gateway       = (*Bridge)(nil)
	_ Authenticator = (*Bridge)(nil)
)

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// device é o formato de /api/devices. tiers chega como objeto JSON e é
// repassado cru para o seletor.
type device struct {
	ID          string          `json:"device_id"`
	Name        string          `json:"device_name"`
	FixedStream bool            `json:"fixed_stream"`
	Tiers       json.RawMessage `json:"tiers,omitempty"`
	Bitrate     *int            `json:"bitrate,omitempty"`
}

type deviceList struct {
	Devices []device `json:"devices"`
}

type bridgeError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Notification é o payload publicado pelo bridge em <topic>/<id>/events.
type Notification struct {
	Type string `json:"type"` // interrupted | stream_closed
	Code int    `json:"code"`
}

const (
	NotificationInterrupted  = "interrupted"
	NotificationStreamClosed = "stream_closed"
)

func NewBridge(cfg config.BridgeConfig, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	r := resty.New()
	r.SetBaseURL(strings.TrimSuffix(cfg.URL, "/"))
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	}
	r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		req.SetHeader("X-Request-ID", uuid.NewString())
		return nil
	})

	return &Bridge{
		http:        r,
		cfg:         cfg,
		log:         logger,
		onInterrupt: make(map[string]func(int)),
		onClosed:    make(map[string]func(int)),
	}
}

// Listen assina as notificações de todos os dispositivos.
func (b *Bridge) Listen(sub Subscriber) error {
	topic := b.cfg.EventsTopic + "/+/events"
	if err := sub.Subscribe(topic, 1, b.handleNotification); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	b.log.Printf("[bridge] notificações em %s", topic)
	return nil
}

func (b *Bridge) handleNotification(topic string, payload []byte) {
	id := strings.TrimSuffix(strings.TrimPrefix(topic, b.cfg.EventsTopic+"/"), "/events")
	if id == "" || strings.Contains(id, "/") {
		b.log.Printf("[bridge] tópico inesperado: %s", topic)
		return
	}

	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		b.log.Printf("[bridge] payload inválido de %s: %v", id, err)
		return
	}

	b.mu.Lock()
	var cb func(int)
	switch n.Type {
	case NotificationInterrupted:
		// cada gravação termina uma vez só
		cb = b.onInterrupt[id]
		delete(b.onInterrupt, id)
	case NotificationStreamClosed:
		cb = b.onClosed[id]
	}
	b.mu.Unlock()

	if cb == nil {
		b.log.Printf("[bridge] %s sem destino para %s (code=%d)", n.Type, id, n.Code)
		return
	}
	cb(n.Code)
}

func (b *Bridge) Login(ctx context.Context) error {
	var out loginResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(loginRequest{
			Username:    b.cfg.Username,
			Password:    b.cfg.Password,
			Country:     b.cfg.Country,
			CountryCode: b.cfg.CountryCode,
		}).
		SetResult(&out).
		Post("/api/login")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrLogin, errorText(resp))
	}
	if out.Token != "" {
		b.http.SetAuthToken(out.Token)
	}
	b.log.Printf("[bridge] login ok (%s)", b.cfg.Username)
	return nil
}

func (b *Bridge) Discover(ctx context.Context) ([]core.CameraDescriptor, error) {
	var out deviceList
	resp, err := b.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/devices")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrDiscovery, errorText(resp))
	}

	cams := make([]core.CameraDescriptor, 0, len(out.Devices))
	for _, d := range out.Devices {
		if d.ID == "" {
			continue
		}
		cams = append(cams, d.descriptor())
	}
	return cams, nil
}

func (d device) descriptor() core.CameraDescriptor {
	caps := core.Capabilities{FixedStream: d.FixedStream, Bitrate: -1}
	if d.Bitrate != nil {
		caps.Bitrate = *d.Bitrate
	}
	if raw := strings.TrimSpace(string(d.Tiers)); raw != "" && raw != "null" {
		caps.Tiers = raw
	}
	return core.CameraDescriptor{ID: d.ID, Name: d.Name, Capabilities: caps}
}

func (b *Bridge) Connect(ctx context.Context, cameraID string) error {
	return b.command(ctx, "POST", devicePath(cameraID, "connect"), nil, ErrConnect)
}

func (b *Bridge) StartPreview(ctx context.Context, cameraID, streamID string, onClosed func(code int)) error {
	b.mu.Lock()
	b.onClosed[cameraID] = onClosed
	b.mu.Unlock()

	body := map[string]string{"stream_id": streamID}
	if err := b.command(ctx, "POST", devicePath(cameraID, "preview"), body, ErrPreview); err != nil {
		b.mu.Lock()
		delete(b.onClosed, cameraID)
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *Bridge) StopPreview(ctx context.Context, cameraID string) error {
	b.mu.Lock()
	delete(b.onClosed, cameraID)
	b.mu.Unlock()
	return b.command(ctx, "DELETE", devicePath(cameraID, "preview"), nil, ErrPreview)
}

func (b *Bridge) StartRecording(ctx context.Context, cameraID, filePath string, onInterrupt func(code int)) error {
	// registra antes: o bridge pode notificar antes de responder o POST
	b.mu.Lock()
	b.onInterrupt[cameraID] = onInterrupt
	b.mu.Unlock()

	body := map[string]string{"file_path": filePath}
	if err := b.command(ctx, "POST", devicePath(cameraID, "record"), body, ErrRecordStart); err != nil {
		b.mu.Lock()
		delete(b.onInterrupt, cameraID)
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *Bridge) StopRecording(ctx context.Context, cameraID string) error {
	b.mu.Lock()
	delete(b.onInterrupt, cameraID)
	b.mu.Unlock()
	return b.command(ctx, "DELETE", devicePath(cameraID, "record"), nil, ErrRecordStop)
}

// Release descarta conexão e preview no bridge. 404 conta como já liberado.
func (b *Bridge) Release(cameraID string) {
	b.mu.Lock()
	delete(b.onInterrupt, cameraID)
	delete(b.onClosed, cameraID)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := b.http.R().SetContext(ctx).Delete(devicePath(cameraID, ""))
	if err != nil {
		b.log.Printf("[bridge] release %s: %v", cameraID, err)
		return
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		b.log.Printf("[bridge] release %s: %s", cameraID, errorText(resp))
	}
}

func (b *Bridge) command(ctx context.Context, method, path string, body interface{}, kind error) error {
	req := b.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", kind, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s", kind, errorText(resp))
	}
	return nil
}

func devicePath(cameraID, action string) string {
	p := "/api/devices/" + url.PathEscape(cameraID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func errorText(resp *resty.Response) string {
	var be bridgeError
	if err := json.Unmarshal(resp.Body(), &be); err == nil {
		if be.Error != "" {
			return fmt.Sprintf("%s (%d)", be.Error, resp.StatusCode())
		}
		if be.Message != "" {
			return fmt.Sprintf("%s (%d)", be.Message, resp.StatusCode())
		}
	}
	if s := strings.TrimSpace(resp.String()); s != "" {
		return fmt.Sprintf("%s (%d)", s, resp.StatusCode())
	}
	return resp.Status()
}
