// Package statuspub reports the robot's mode, branch and fill level to an
// MQTT broker. Messages go out only when one of those changes.
package statuspub

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/HansolSon1113/MakerProject/internal/controller"
	"github.com/HansolSon1113/MakerProject/internal/monitoring"
)

const publishTimeout = 2 * time.Second

// Config selects the broker and topic.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	RunID    string
}

// Message is the JSON payload published on Topic.
type Message struct {
	RunID   string    `json:"run_id,omitempty"`
	Time    time.Time `json:"time"`
	Mode    string    `json:"mode"`
	Branch  string    `json:"branch"`
	Fill    string    `json:"fill"`
	LoadCm  float64   `json:"load_cm"`
	Drive   string    `json:"drive"`
	Display [2]string `json:"display"`
}

func (m Message) key() string {
	return m.Mode + "|" + m.Branch + "|" + m.Fill
}

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends status changes to the broker.
type Publisher struct {
	cfg    Config
	client client

	mu      sync.Mutex
	lastKey string
	sent    int
	wg      sync.WaitGroup
}

// BrokerURL adds a tcp:// scheme and default port when broker has none.
func BrokerURL(broker string) string {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	host := broker[strings.Index(broker, "://")+3:]
	if !strings.Contains(host, ":") {
		broker += ":1883"
	}
	return broker
}

// New connects to cfg.Broker. The connection is retried in the background by
// the client, so a broker that is down at startup is not an error.
func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("statuspub: no broker configured")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(BrokerURL(cfg.Broker)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		monitoring.Logf("statuspub: connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		monitoring.Logf("statuspub: connection lost: %v", err)
	}

	p := newPublisher(cfg, mqtt.NewClient(opts))
	p.client.Connect()
	return p, nil
}

func newPublisher(cfg Config, c client) *Publisher {
	return &Publisher{cfg: cfg, client: c}
}

// MessageFor converts a controller status into the published payload.
func MessageFor(runID string, s controller.Status) Message {
	return Message{
		RunID:   runID,
		Time:    s.Time,
		Mode:    s.Mode.String(),
		Branch:  s.Branch.String(),
		Fill:    s.Fill,
		LoadCm:  s.LoadCm,
		Drive:   s.Drive.String(),
		Display: s.Display,
	}
}

// Publish sends s if its mode, branch or fill differs from the last one
// sent. It never blocks on the broker.
func (p *Publisher) Publish(s controller.Status) error {
	msg := MessageFor(p.cfg.RunID, s)

	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.key() == p.lastKey {
		return nil
	}
	if !p.client.IsConnected() {
		return fmt.Errorf("statuspub: not connected")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("statuspub: marshal: %w", err)
	}

	token := p.client.Publish(p.cfg.Topic, 1, true, payload)
	p.lastKey = msg.key()
	p.sent++
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if !token.WaitTimeout(publishTimeout) {
			monitoring.Logf("statuspub: publish to %s timed out", p.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			monitoring.Logf("statuspub: publish to %s: %v", p.cfg.Topic, err)
		}
	}()
	return nil
}

// Sent returns how many messages have been handed to the client.
func (p *Publisher) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Close waits for outstanding publishes and disconnects.
func (p *Publisher) Close() error {
	p.wg.Wait()
	p.client.Disconnect(250)
	return nil
}
