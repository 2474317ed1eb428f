package eventsink

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gregLibert/nfc-reader/internal/syncutil"
	"github.com/gregLibert/nfc-reader/pkg/contactless"
)

// DefaultTopic is the topic prefix; edges go to <prefix>/inserted and <prefix>/removed.
const DefaultTopic = "nfc-reader/card"

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Config holds MQTT connection settings.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Topic      string `yaml:"topic"`
	ClientID   string `yaml:"client_id"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// publisher is the part of paho.Client the sink drives.
type publisher interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes edges as JSON messages. It is a no-op when no host is configured.
type MQTTSink struct {
	client  publisher
	topic   string
	enabled bool
	logger  *slog.Logger

	mu        syncutil.Mutex
	connected bool
}

// NewMQTTSink creates the sink. Returns a disabled no-op sink if host is empty.
func NewMQTTSink(cfg Config, logger *slog.Logger) (*MQTTSink, error) {
	s := &MQTTSink{topic: cfg.Topic, logger: logger}
	if s.topic == "" {
		s.topic = DefaultTopic
	}

	if cfg.Host == "" {
		logger.Info("MQTT disabled (no host configured)")
		return s, nil
	}
	s.enabled = true

	var broker string
	var tlsConfig *tls.Config

	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("nfc-reader-%d", os.Getpid())
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) { s.setConnected(false, err) }).
		SetOnConnectHandler(func(paho.Client) { s.setConnected(true, nil) })

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	s.client = paho.NewClient(opts)
	logger.Info("MQTT configured", "broker", broker, "client_id", clientID, "topic", s.topic)
	return s, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificate found in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect connects to the broker. No-op if disabled. A broker that does not answer
// within the connect timeout is retried in the background.
func (s *MQTTSink) Connect() error {
	if !s.enabled {
		return nil
	}
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		s.logger.Warn("MQTT broker unreachable, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Close disconnects from the broker. No-op if disabled.
func (s *MQTTSink) Close() {
	if !s.enabled || s.client == nil {
		return
	}
	s.client.Disconnect(250)
}

// IsEnabled returns whether MQTT is enabled.
func (s *MQTTSink) IsEnabled() bool {
	return s.enabled
}

// Connected reports the last known broker connection state.
func (s *MQTTSink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Topic returns the topic an edge is published to.
func (s *MQTTSink) Topic(edge contactless.Edge) string {
	return s.topic + "/" + edge.String()
}

// Publish sends ev with QoS 1 and waits for the broker acknowledgement.
func (s *MQTTSink) Publish(ev contactless.Event) error {
	if !s.enabled {
		return nil
	}

	payload, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return fmt.Errorf("encode card event: %w", err)
	}

	topic := s.Topic(ev.Edge)
	token := s.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (s *MQTTSink) setConnected(up bool, err error) {
	s.mu.Lock()
	s.connected = up
	s.mu.Unlock()

	if up {
		s.logger.Info("MQTT connection established")
	} else {
		s.logger.Warn("MQTT connection lost", "error", err)
	}
}
