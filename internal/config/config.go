// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sua-org/cam-recorder/internal/core"
)

const (
	DefaultDurationMinutes = 1
	DefaultQuality         = core.QualityHD
	DefaultBasePath        = "/var/lib/cam-recorder/recording"
)

// Recording são os parâmetros lidos a cada ciclo de preview/gravação.
type Recording struct {
	DurationMinutes int          `yaml:"duration_minutes" json:"duration_minutes"`
	Quality         core.Quality `yaml:"quality" json:"quality"`
}

func (r Recording) Validate() error {
	if r.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes inválido: %d", r.DurationMinutes)
	}
	if !r.Quality.Valid() {
		return fmt.Errorf("quality inválida: %q", r.Quality)
	}
	return nil
}

// Provider entrega um snapshot da configuração de gravação.
type Provider interface {
	Snapshot() Recording
}

// Static é um Provider imutável.
type Static Recording

func (s Static) Snapshot() Recording { return Recording(s) }

type BridgeConfig struct {
	URL         string
	Username    string
	Password    string
	Country     string
	CountryCode string
	Timeout     time.Duration
	EventsTopic string
}

// Config é a configuração do processo.
type Config struct {
	BasePath  string
	Recording Recording
	// arquivo YAML opcional; mudanças em runtime são gravadas nele
	File string

	BaseTopic      string
	Bridge         BridgeConfig
	StatusHTTPAddr string
	StatusInterval time.Duration

	Archive ArchiveConfig
}

// ArchiveConfig é o destino MinIO das gravações concluídas. Sem Endpoint, não
// há arquivamento.
type ArchiveConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
	// Prefix separa as gravações de cada máquina no bucket (default: hostname)
	Prefix      string
	DeleteLocal bool
}

func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

// fileConfig é o formato do RECORDER_CONFIG_FILE.
type fileConfig struct {
	BasePath  string     `yaml:"base_path,omitempty"`
	Recording *Recording `yaml:"recording,omitempty"`
}

// LoadFromEnv monta a Config a partir do ambiente (o .env já deve ter sido
// carregado) e, se existir, do arquivo YAML em RECORDER_CONFIG_FILE.
func LoadFromEnv() (*Config, error) {
	baseTopic := strings.TrimSuffix(getenv("MQTT_BASE_TOPIC", "cam-recorder"), "/")

	cfg := &Config{
		BasePath: getenv("RECORDER_BASE_PATH", DefaultBasePath),
		Recording: Recording{
			DurationMinutes: getenvInt("RECORDER_DURATION_MINUTES", DefaultDurationMinutes),
			Quality:         core.ParseQuality(getenv("RECORDER_QUALITY", string(DefaultQuality))),
		},
		File:      strings.TrimSpace(os.Getenv("RECORDER_CONFIG_FILE")),
		BaseTopic: baseTopic,
		Bridge: BridgeConfig{
			URL:         getenv("BRIDGE_URL", "http://localhost:8081"),
			Username:    os.Getenv("BRIDGE_USERNAME"),
			Password:    os.Getenv("BRIDGE_PASSWORD"),
			Country:     os.Getenv("BRIDGE_COUNTRY"),
			CountryCode: os.Getenv("BRIDGE_COUNTRY_CODE"),
			Timeout:     time.Duration(getenvInt("BRIDGE_TIMEOUT_SECONDS", 60)) * time.Second,
			EventsTopic: strings.TrimSuffix(getenv("BRIDGE_EVENTS_TOPIC", baseTopic+"/bridge"), "/"),
		},
		StatusHTTPAddr: getenv("STATUS_HTTP_ADDR", ":9108"),
		StatusInterval: time.Duration(getenvInt("CAMREC_STATUS_INTERVAL_SECONDS", 30)) * time.Second,
		Archive: ArchiveConfig{
			Endpoint:      strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")),
			AccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey:     os.Getenv("MINIO_SECRET_KEY"),
			Bucket:        getenv("MINIO_BUCKET", "cam-recordings"),
			UseSSL:        getenvBool("MINIO_USE_SSL", false),
			PublicBaseURL: os.Getenv("MINIO_PUBLIC_BASE_URL"),
			Prefix:        getenv("MINIO_PREFIX", hostname()),
			DeleteLocal:   getenvBool("RECORDER_ARCHIVE_DELETE_LOCAL", false),
		},
	}

	if cfg.File != "" {
		if err := cfg.mergeFile(cfg.File); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config inválida: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.BasePath) == "" {
		return errors.New("RECORDER_BASE_PATH vazio")
	}
	return c.Recording.Validate()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[config] %s não existe, usando apenas o ambiente", path)
			return nil
		}
		return fmt.Errorf("ler %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("yaml inválido em %s: %w", path, err)
	}
	if fc.BasePath != "" {
		c.BasePath = fc.BasePath
	}
	if fc.Recording != nil {
		if fc.Recording.DurationMinutes > 0 {
			c.Recording.DurationMinutes = fc.Recording.DurationMinutes
		}
		if fc.Recording.Quality != "" {
			c.Recording.Quality = core.ParseQuality(string(fc.Recording.Quality))
		}
	}
	log.Printf("[config] arquivo %s carregado", path)
	return nil
}

// writeRecording regrava a seção recording do arquivo preservando o resto.
func writeRecording(path string, rec Recording) error {
	var fc fileConfig
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("yaml inválido em %s: %w", path, err)
		}
	}
	fc.Recording = &rec

	out, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("criar %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("gravar %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "cam-recorder"
	}
	return h
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] valor inválido em %s=%q, usando default %d", key, v, def)
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] valor inválido em %s=%q, usando default %t", key, v, def)
		return def
	}
	return b
}
