// Package notify publishes negotiation progress and session state to MQTT.
package notify

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/use-go/ptzctl/internal/config"
)

// Publisher sends one MQTT message
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Client is a connected paho client
type Client struct {
	client mqtt.Client
}

// Dial connects to the broker in cfg
func Dial(cfg config.MQTT) (*Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, errors.Errorf("mqtt connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Annotatef(err, "mqtt connect to %s", broker)
	}
	return &Client{client: cli}, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if ok := token.WaitTimeout(5 * time.Second); !ok {
		return errors.Errorf("mqtt publish to %s: timeout", topic)
	}
	return token.Error()
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
