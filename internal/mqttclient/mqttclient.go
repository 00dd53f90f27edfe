// internal/mqttclient/mqttclient.go
package mqttclient

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

type Client struct {
	client mqtt.Client

	// assinaturas refeitas a cada reconexão (clean session)
	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string

	// Will é publicado (retained) pelo broker se o processo cair sem Close.
	WillTopic   string
	WillPayload []byte
}

// NewClientFromEnv lê MQTT_HOST, MQTT_PORT, MQTT_USERNAME, MQTT_PASSWORD e
// MQTT_CLIENT_ID. Sem MQTT_CLIENT_ID, usa defaultClientID com sufixo aleatório
// para dois processos não derrubarem um ao outro.
func NewClientFromEnv(defaultClientID string, will func(*Config)) (*Client, error) {
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = defaultClientID + "-" + uuid.NewString()[:8]
	}

	cfg := Config{
		Host:     getenv("MQTT_HOST", "localhost"),
		Port:     getenvInt("MQTT_PORT", 1883),
		Username: os.Getenv("MQTT_USERNAME"),
		Password: os.Getenv("MQTT_PASSWORD"),
		ClientID: clientID,
	}
	if will != nil {
		will(&cfg)
	}

	return NewClient(cfg)
}

func NewClient(cfg Config) (*Client, error) {
	c := &Client{subs: make(map[string]subscription)}
	opts := c.options(cfg)
	broker := opts.Servers[0].String()

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout (%s)", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	log.Printf("[mqtt] conectado em %s como %s", broker, cfg.ClientID)

	c.client = cli
	return c, nil
}

func (c *Client) options(cfg Config) *mqtt.ClientOptions {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	// handlers publicam (config/get, config/set); com ordem garantida isso
	// trava o roteador e atrasa as notificações do bridge
	opts.SetOrderMatters(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.WillTopic != "" {
		opts.SetBinaryWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[mqtt] conexão perdida com %s: %v", broker, err)
	})
	opts.SetOnConnectHandler(func(cli mqtt.Client) {
		c.resubscribe(cli)
	})
	return opts
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish timeout em %s", topic)
	}
	return token.Error()
}

func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	h := func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: h}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, h)
	token.Wait()
	return token.Error()
}

func (c *Client) resubscribe(cli mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		token := cli.Subscribe(topic, s.qos, s.handler)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("[mqtt] erro ao reassinar %s: %v", topic, err)
		}
	}
	if len(subs) > 0 {
		log.Printf("[mqtt] %d assinaturas refeitas após reconexão", len(subs))
	}
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			return x
		}
	}
	return def
}
