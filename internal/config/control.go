// internal/config/control.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
)

// Bus é o subconjunto do cliente MQTT usado pelo controle remoto de config.
type Bus interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// ServeControl assina <base>/config/set e <base>/config/get.
//
//	mosquitto_pub -t cam-recorder/config/set -m '{"duration_minutes":15}'
//	mosquitto_pub -t cam-recorder/config/set -m '{"quality":"SD"}'
//
// O snapshot atual é publicado (retained) em <base>/config após cada mudança
// e a cada /config/get.
func ServeControl(bus Bus, baseTopic string, store *Store) error {
	setTopic := baseTopic + "/config/set"
	getTopic := baseTopic + "/config/get"
	stateTopic := baseTopic + "/config"

	publish := func(rec Recording) {
		b, err := json.Marshal(rec)
		if err != nil {
			log.Printf("[config] marshal snapshot: %v", err)
			return
		}
		if err := bus.Publish(stateTopic, 1, true, b); err != nil {
			log.Printf("[config] erro ao publicar em %s: %v", stateTopic, err)
		}
	}

	if err := bus.Subscribe(setTopic, 1, func(_ string, payload []byte) {
		rec, err := store.ApplyJSON(payload)
		if err != nil {
			log.Printf("[config] set rejeitado: %v (payload=%s)", err, string(payload))
			return
		}
		publish(rec)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", setTopic, err)
	}

	if err := bus.Subscribe(getTopic, 1, func(_ string, _ []byte) {
		publish(store.Snapshot())
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", getTopic, err)
	}

	log.Printf("[config] controle remoto em %s e %s", setTopic, getTopic)
	publish(store.Snapshot())
	return nil
}
