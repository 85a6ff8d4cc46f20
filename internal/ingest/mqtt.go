package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the optional MQTT reading source.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
	QoS       byte   `yaml:"qos"`
}

// DefaultMQTTConfig returns the default MQTT source settings.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Topic: "roadwatch/readings",
		QoS:   1,
	}
}

// MQTTSource subscribes to a broker topic and feeds reading batches into
// the pipeline. Each message carries a JSON array of readings.
type MQTTSource struct {
	config   MQTTConfig
	pipeline *Pipeline
	client   mqtt.Client
}

// NewMQTTSource creates an MQTT reading source. Call Start to connect.
func NewMQTTSource(config MQTTConfig, pipeline *Pipeline) *MQTTSource {
	if config.ClientID == "" {
		config.ClientID = "roadwatch-" + time.Now().Format("20060102150405")
	}
	return &MQTTSource{config: config, pipeline: pipeline}
}

// Start connects to the broker and subscribes. The subscription is
// re-established automatically on reconnect.
func (s *MQTTSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.BrokerURL)
	opts.SetClientID(s.config.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(s.config.Topic, s.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			s.handleMessage(ctx, msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("mqtt subscribe error: %v", token.Error())
			return
		}
		log.Printf("mqtt source subscribed to topic=%s", s.config.Topic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	log.Printf("mqtt source connected: %s", s.config.BrokerURL)
	return nil
}

func (s *MQTTSource) handleMessage(ctx context.Context, payload []byte) {
	var inputs []ReadingInput
	if err := json.Unmarshal(payload, &inputs); err != nil {
		log.Printf("mqtt message rejected: invalid JSON: %v", err)
		return
	}

	result, err := s.pipeline.Submit(ctx, inputs)
	if err != nil {
		log.Printf("mqtt batch rejected: %v", err)
		return
	}
	if len(result.NewIncidentIDs) > 0 {
		log.Printf("mqtt batch: %d readings, %d new incidents", result.Inserted, len(result.NewIncidentIDs))
	}
}

// Stop disconnects from the broker.
func (s *MQTTSource) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
