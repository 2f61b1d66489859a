// Package publish streams tracker output to an MQTT broker so other
// processes can consume gaze estimates.
//
// Topics under the configured base:
//
//	<base>/estimate  JSON Estimate for every tracking frame (QoS 0)
//	<base>/mode      tracker mode, retained, published on change
//	<base>/test      accuracy test summary, retained, published once per test
package publish

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-gaze/pkg/epog"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// DefaultTopic is the base topic when none is configured.
const DefaultTopic = "gaze"

// Estimate is the payload of <base>/estimate.
type Estimate struct {
	Seq int64 `json:"seq"`
	TS  int64 `json:"ts"` // Unix milliseconds
	gaze.Estimate
}

// publisher is the part of mqtt.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher is an epog.Observer publishing updates to MQTT.
type Publisher struct {
	client publisher
	topic  string
	logger *slog.Logger

	mu       sync.Mutex
	mode     epog.Mode
	haveMode bool

	published atomic.Uint64
	failed    atomic.Uint64
}

// New wraps a connected client. topic "" uses DefaultTopic.
func New(client publisher, topic string, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "mqtt"),
	}
}

// Connect dials broker (e.g. "tcp://localhost:1883") and returns a
// Publisher and a disconnect function.
func Connect(broker, clientID, topic string, logger *slog.Logger) (*Publisher, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, token.Error()
	}
	p := New(client, topic, logger)
	p.logger.Info("connected to MQTT", "broker", broker, "topic", p.topic)
	return p, func() { client.Disconnect(250) }, nil
}

// OnUpdate implements epog.Observer. It never waits for the broker.
func (p *Publisher) OnUpdate(u epog.Update) {
	p.mu.Lock()
	modeChanged := !p.haveMode || p.mode != u.Mode
	p.mode, p.haveMode = u.Mode, true
	p.mu.Unlock()

	if modeChanged {
		p.publish(p.topic+"/mode", 1, true, []byte(u.Mode.String()))
	}
	if u.Test != nil && u.Test.Summary != nil {
		p.publishJSON(p.topic+"/test", 1, true, u.Test.Summary)
	}
	if u.Mode == epog.ModeTracking {
		p.publishJSON(p.topic+"/estimate", 0, false, Estimate{
			Seq:      u.Seq,
			TS:       time.Now().UnixMilli(),
			Estimate: u.Estimate,
		})
	}
}

func (p *Publisher) publishJSON(topic string, qos byte, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("json marshal error", "topic", topic, "error", err)
		return
	}
	p.publish(topic, qos, retained, payload)
}

func (p *Publisher) publish(topic string, qos byte, retained bool, payload []byte) {
	token := p.client.Publish(topic, qos, retained, payload)
	p.published.Add(1)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			if p.failed.Add(1) == 1 {
				p.logger.Warn("MQTT publish error", "topic", topic, "error", err)
			}
		}
	}()
}

// Stats returns the number of messages handed to the client and the
// number that failed.
func (p *Publisher) Stats() (published, failed uint64) {
	return p.published.Load(), p.failed.Load()
}
