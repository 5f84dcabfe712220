package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/util"
)

// mqttQoS is "at least once"; the broker keeps per-topic order for it.
const mqttQoS = 1

// MQTTChannel is a signaling channel over an MQTT broker. Each role listens on
// loopcall/<session>/<role> and publishes to the other role's topic.
//
// Publishes are not retained, so whatever is sent before the other role has
// subscribed is lost. The call layer repeats an unanswered offer to cover
// an answerer that starts late.
type MQTTChannel struct {
	client   MQTT.Client
	subTopic string
	pubTopic string
	in       *inbox

	closeOnce sync.Once
}

var _ Channel = (*MQTTChannel)(nil)

// Topic returns the topic the given role listens on for a session.
func Topic(session string, role config.Role) string {
	return fmt.Sprintf("loopcall/%s/%s", session, role)
}

// DialMQTT connects to broker and subscribes to role's topic within session.
func DialMQTT(ctx context.Context, broker, session string, role config.Role) (*MQTTChannel, error) {
	c := &MQTTChannel{
		subTopic: Topic(session, role),
		pubTopic: Topic(session, role.Other()),
		in:       newInbox(),
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("loopcall-" + uuid.NewString())
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	c.client = MQTT.NewClient(opts)

	if err := wait(ctx, c.client.Connect()); err != nil {
		c.in.stop(err)
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	if err := wait(ctx, c.client.Subscribe(c.subTopic, mqttQoS, c.onPublish)); err != nil {
		c.client.Disconnect(0)
		c.in.stop(err)
		return nil, fmt.Errorf("failed to subscribe %s: %w", c.subTopic, err)
	}

	return c, nil
}

func (c *MQTTChannel) onPublish(_ MQTT.Client, m MQTT.Message) {
	var msg Message
	if err := json.Unmarshal(m.Payload(), &msg); err != nil {
		util.LogWarning("dropping malformed signaling message on %s: %v", m.Topic(), err)
		return
	}
	c.in.push(msg)
}

// onConnectionLost delivers what is already queued, then stops the channel.
func (c *MQTTChannel) onConnectionLost(_ MQTT.Client, err error) {
	c.in.finish(fmt.Errorf("MQTT connection lost: %w", err))
}

// Send publishes msg to the counterpart's topic and waits for the broker ack.
func (c *MQTTChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.in.done:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode signaling message: %w", err)
	}
	if err := wait(ctx, c.client.Publish(c.pubTopic, mqttQoS, false, data)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", c.pubTopic, err)
	}
	return nil
}

func (c *MQTTChannel) OnMessage(fn func(Message)) { c.in.setHandler(fn) }

func (c *MQTTChannel) Done() <-chan struct{} { return c.in.done }

func (c *MQTTChannel) Err() error { return c.in.stopErr() }

// Close unsubscribes and disconnects from the broker.
func (c *MQTTChannel) Close() error {
	c.closeOnce.Do(func() {
		c.in.stop(nil)
		c.client.Unsubscribe(c.subTopic).WaitTimeout(writeTimeout)
		c.client.Disconnect(250)
	})
	return nil
}

// wait blocks on a paho token until it completes or ctx ends.
func wait(ctx context.Context, token MQTT.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
