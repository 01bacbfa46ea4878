package report

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

const (
	defaultMQTTTopic   = "kasa/result"
	defaultMQTTTimeout = time.Second * 10
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retained bool
	Timeout  time.Duration
}

// publisher is the part of an MQTT connection the reporter needs
type publisher interface {
	Publish(topic string, payload []byte) error
	Disconnect()
}

// MQTT publishes the outcome as a JSON document
type MQTT struct {
	cfg  MQTTConfig
	inv  Invocation
	conn publisher
	now  func() time.Time
}

func NewMQTT(cfg MQTTConfig, inv Invocation) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("no MQTT broker configured")
	}
	if cfg.QoS > 2 {
		return nil, errors.Errorf("bad MQTT QoS %d, must be 0, 1 or 2", cfg.QoS)
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultMQTTTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "kasa-cli-" + uuid.New().String()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMQTTTimeout
	}

	conn, err := dialPaho(cfg)
	if err != nil {
		return nil, err
	}

	return newMQTTWithPublisher(cfg, inv, conn), nil
}

func newMQTTWithPublisher(cfg MQTTConfig, inv Invocation, conn publisher) *MQTT {
	return &MQTT{
		cfg:  cfg,
		inv:  inv,
		conn: conn,
		now:  time.Now,
	}
}

func (m *MQTT) publish(o outcome) error {
	o.Instance = logging.InstanceID()
	o.Alias = m.inv.Alias
	o.State = m.inv.State
	o.Time = m.now().UTC()

	payload, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encoding MQTT outcome")
	}

	logging.Logger(nil).Debugf("publishing to %s: %s", m.cfg.Topic, payload)

	return m.conn.Publish(m.cfg.Topic, payload)
}

func (m *MQTT) Success() error {
	return m.publish(outcome{OK: true})
}

func (m *MQTT) Failure(cause error) error {
	// no stack trace for subscribers
	return m.publish(outcome{OK: false, Error: cause.Error()})
}

func (m *MQTT) Close() error {
	m.conn.Disconnect()
	return nil
}

type pahoPublisher struct {
	client   pahomqtt.Client
	qos      byte
	retained bool
	timeout  time.Duration
}

func dialPaho(cfg MQTTConfig) (*pahoPublisher, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, errors.Errorf("connecting to MQTT broker %s: timeout after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connecting to MQTT broker %s", cfg.Broker)
	}

	return &pahoPublisher{
		client:   client,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  cfg.Timeout,
	}, nil
}

func (p *pahoPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return errors.Errorf("publishing to %s: timeout after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}
	return nil
}

func (p *pahoPublisher) Disconnect() {
	// milliseconds to let in-flight work finish
	p.client.Disconnect(250)
}
