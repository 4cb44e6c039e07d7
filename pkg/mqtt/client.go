// Package mqtt publishes per-cycle scan summaries to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
	"github.com/markus-lassfolk/wavescope/pkg/scan"
)

// Config holds MQTT configuration.
type Config struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`
}

// DefaultConfig returns default MQTT configuration.
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "wavescoped",
		TopicPrefix: "wavescope",
		QoS:         1,
		Retain:      false,
		Enabled:     false,
	}
}

// Client is the MQTT publisher. All methods are no-ops when disabled.
type Client struct {
	client      MQTT.Client
	logger      *logx.Logger
	config      *Config
	lastPublish time.Time
}

// NewClient creates an MQTT client.
func NewClient(config *Config, logger *logx.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{logger: logger, config: config}
}

// Connect establishes the broker connection.
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("MQTT client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("MQTT client connected",
		"broker", c.config.Broker, "port", c.config.Port)
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info("MQTT client disconnected")
	}
}

// IsConnected reports broker connectivity.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) onConnectionLost(_ MQTT.Client, err error) {
	c.logger.Warn("MQTT connection lost", "error", err)
}

// cycleSummary is the published per-cycle payload.
type cycleSummary struct {
	Timestamp    time.Time           `json:"timestamp"`
	Cycle        int                 `json:"cycle"`
	Total        int                 `json:"total"`
	Lingering    int                 `json:"lingering"`
	ByBand       map[string]int      `json:"by_band"`
	Connected    *connectedSummary   `json:"connected,omitempty"`
	AccessPoints []*scan.AccessPoint `json:"access_points"`
}

type connectedSummary struct {
	BSSID     string `json:"bssid"`
	SSID      string `json:"ssid"`
	SignalDBm int    `json:"signal_dbm"`
	Channel   int    `json:"channel"`
	Band      string `json:"band"`
}

// PublishCycle publishes one cycle's record set to <prefix>/scan/cycle.
func (c *Client) PublishCycle(cycle int, aps []*scan.AccessPoint) error {
	if !c.IsConnected() {
		return nil
	}

	summary := &cycleSummary{
		Timestamp:    time.Now(),
		Cycle:        cycle,
		Total:        len(aps),
		ByBand:       make(map[string]int),
		AccessPoints: aps,
	}
	for _, ap := range aps {
		summary.ByBand[ap.Band]++
		if ap.Lingering {
			summary.Lingering++
		}
		if ap.InUse {
			summary.Connected = &connectedSummary{
				BSSID:     ap.Key(),
				SSID:      ap.SSID,
				SignalDBm: ap.DBm(),
				Channel:   ap.Channel,
				Band:      ap.Band,
			}
		}
	}

	topic := fmt.Sprintf("%s/scan/cycle", c.config.TopicPrefix)
	return c.publishJSON(topic, summary)
}

// PublishStatus publishes daemon health to <prefix>/status.
func (c *Client) PublishStatus(status map[string]interface{}) error {
	if !c.IsConnected() {
		return nil
	}
	topic := fmt.Sprintf("%s/status", c.config.TopicPrefix)
	return c.publishJSON(topic, status)
}

func (c *Client) publishJSON(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	token := c.client.Publish(topic, byte(c.config.QoS), c.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.lastPublish = time.Now()
	c.logger.Debug("MQTT message published", "topic", topic, "size", len(data))
	return nil
}

// LastPublish returns the time of the last successful publish.
func (c *Client) LastPublish() time.Time {
	return c.lastPublish
}
