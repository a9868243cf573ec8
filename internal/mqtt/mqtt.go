// Package mqtt provides MQTT publishing for Home Assistant integration.
// It defines the Publisher interface and includes both a StubPublisher (no-op)
// and a full HAPublisher that connects to an MQTT broker, publishes HA
// auto-discovery configs for every child on the account, and forwards snapshot
// updates from the EventBus to the per-child state topics.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/trymwestin/huckleberry/internal/core/events"
	"github.com/trymwestin/huckleberry/internal/core/state"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
)

// ---------------------------------------------------------------------------
// Publisher interface
// ---------------------------------------------------------------------------

// Publisher sends events and state to an MQTT broker.
type Publisher interface {
	// Start begins publishing events from the event bus.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// StubPublisher (no-op, used when MQTT is disabled)
// ---------------------------------------------------------------------------

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	log *slog.Logger
}

// NewStubPublisher creates a no-op MQTT publisher.
func NewStubPublisher(log *slog.Logger) *StubPublisher {
	return &StubPublisher{log: log}
}

// Start is a no-op.
func (s *StubPublisher) Start(_ context.Context) error {
	s.log.Info("MQTT publisher disabled (stub)")
	return nil
}

// Stop is a no-op.
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

// Ensure StubPublisher implements Publisher.
var _ Publisher = (*StubPublisher)(nil)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds MQTT publisher configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	DeviceID    string
}

// ---------------------------------------------------------------------------
// HAPublisher – full Home Assistant MQTT implementation
// ---------------------------------------------------------------------------

// Ensure HAPublisher implements Publisher at compile time.
var _ Publisher = (*HAPublisher)(nil)

// HAPublisher publishes Home Assistant auto-discovery configs for every child
// and forwards snapshot updates from the EventBus to the state topics.
type HAPublisher struct {
	cfg      Config
	children []tracker.Child
	store    state.StateReader
	bus      *state.EventBus
	log      *slog.Logger

	client pahomqtt.Client

	unsub func() // EventBus unsubscribe
	stopC chan struct{}
	wg    sync.WaitGroup
}

// NewHAPublisher creates a new Home Assistant MQTT publisher for the given
// children.
func NewHAPublisher(cfg Config, children []tracker.Child, store state.StateReader, bus *state.EventBus, log *slog.Logger) *HAPublisher {
	return &HAPublisher{
		cfg:      cfg,
		children: children,
		store:    store,
		bus:      bus,
		log:      log,
		stopC:    make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

// Start connects to the MQTT broker, publishes discovery configs, publishes
// initial state, and starts listening on the EventBus for snapshot updates.
func (p *HAPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(fmt.Sprintf("huckleberry-%s", p.cfg.DeviceID)).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.log.Info("MQTT connected, publishing discovery and state")
			p.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.log.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Subscribe to EventBus.
	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.log.Info("MQTT publisher started", "broker", p.cfg.Broker, "children", len(p.children))
	return nil
}

// Stop gracefully disconnects from the MQTT broker and stops the event loop.
func (p *HAPublisher) Stop(_ context.Context) error {
	p.log.Info("MQTT publisher stopping")

	// Signal event loop to exit.
	close(p.stopC)

	// Unsubscribe from EventBus.
	if p.unsub != nil {
		p.unsub()
	}

	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		// Publish offline before disconnecting.
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.log.Info("MQTT publisher stopped")
	return nil
}

// ---------------------------------------------------------------------------
// onConnect – called on every (re)connect
// ---------------------------------------------------------------------------

func (p *HAPublisher) onConnect() {
	// 1. Publish online availability (retained).
	p.publish(p.topic("status"), "online", true)

	// 2. Publish all discovery configs.
	p.publishDiscovery()

	// 3. Subscribe to HA birth topic for re-discovery.
	p.client.Subscribe("homeassistant/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if string(msg.Payload()) == "online" {
			p.log.Info("Home Assistant came online, re-publishing discovery")
			p.publishDiscovery()
			p.publishFullState()
		}
	})

	// 4. Publish initial state snapshot.
	p.publishFullState()
}

// ---------------------------------------------------------------------------
// Discovery configs
// ---------------------------------------------------------------------------

// deviceInfo returns the shared HA device block for one child.
func (p *HAPublisher) deviceInfo(child tracker.Child) map[string]interface{} {
	return map[string]interface{}{
		"identifiers":  []string{fmt.Sprintf("%s_%s", p.cfg.DeviceID, child.UID)},
		"name":         fmt.Sprintf("Huckleberry %s", child.Name),
		"manufacturer": "Huckleberry",
		"model":        "Baby Tracker",
	}
}

// discoveryTopic builds the HA auto-discovery topic.
func discoveryTopic(component, deviceID, objectID string) string {
	return fmt.Sprintf("homeassistant/%s/%s_%s/config", component, deviceID, objectID)
}

func (p *HAPublisher) publishDiscovery() {
	for _, child := range p.children {
		p.publishChildDiscovery(child)
	}
}

func (p *HAPublisher) publishChildDiscovery(child tracker.Child) {
	dev := p.deviceInfo(child)
	avail := map[string]interface{}{
		"topic": p.topic("status"),
	}
	id := fmt.Sprintf("%s_%s", p.cfg.DeviceID, child.UID)
	statsTopic := p.childTopic(child.UID, "stats/state")

	// --- Today's stats, all templated off one JSON state topic ---
	p.publishDiscoveryConfig("sensor", id, "sleep_today", map[string]interface{}{
		"name":                fmt.Sprintf("%s Sleep Today", child.Name),
		"unique_id":           fmt.Sprintf("%s_sleep_today", id),
		"state_topic":         statsTopic,
		"value_template":      "{{ value_json.sleep_minutes }}",
		"unit_of_measurement": "min",
		"device_class":        "duration",
		"state_class":         "measurement",
		"device":              dev,
		"availability":        avail,
	})

	for _, counter := range []struct {
		objectID string
		name     string
		field    string
	}{
		{"sleeps_today", "Sleeps Today", "sleep_count"},
		{"feeds_today", "Feeds Today", "feed_count"},
		{"bottles_today", "Bottles Today", "bottle_count"},
		{"diapers_today", "Diapers Today", "diaper_count"},
	} {
		p.publishDiscoveryConfig("sensor", id, counter.objectID, map[string]interface{}{
			"name":           fmt.Sprintf("%s %s", child.Name, counter.name),
			"unique_id":      fmt.Sprintf("%s_%s", id, counter.objectID),
			"state_topic":    statsTopic,
			"value_template": fmt.Sprintf("{{ value_json.%s }}", counter.field),
			"state_class":    "measurement",
			"device":         dev,
			"availability":   avail,
		})
	}

	// --- Last-event timestamps ---
	for _, last := range []struct {
		objectID string
		name     string
	}{
		{"last_sleep", "Last Sleep"},
		{"last_feed", "Last Feed"},
		{"last_diaper", "Last Diaper"},
	} {
		p.publishDiscoveryConfig("sensor", id, last.objectID, map[string]interface{}{
			"name":                  fmt.Sprintf("%s %s", child.Name, last.name),
			"unique_id":             fmt.Sprintf("%s_%s", id, last.objectID),
			"state_topic":           p.childTopic(child.UID, last.objectID+"/state"),
			"json_attributes_topic": p.childTopic(child.UID, last.objectID+"/attributes"),
			"device_class":          "timestamp",
			"device":                dev,
			"availability":          avail,
		})
	}

	// --- Next upcoming event ---
	p.publishDiscoveryConfig("sensor", id, "next_event", map[string]interface{}{
		"name":                  fmt.Sprintf("%s Next Event", child.Name),
		"unique_id":             fmt.Sprintf("%s_next_event", id),
		"state_topic":           p.childTopic(child.UID, "next_event/state"),
		"json_attributes_topic": p.childTopic(child.UID, "next_event/attributes"),
		"device":                dev,
		"availability":          avail,
	})
}

func (p *HAPublisher) publishDiscoveryConfig(component, deviceID, objectID string, payload map[string]interface{}) {
	topic := discoveryTopic(component, deviceID, objectID)
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal discovery config", "component", component, "object_id", objectID, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

// ---------------------------------------------------------------------------
// State publishing
// ---------------------------------------------------------------------------

// publishFullState publishes the latest snapshot of every child.
func (p *HAPublisher) publishFullState() {
	for _, snap := range p.store.Snapshot() {
		p.publishChildState(snap)
	}
}

func (p *HAPublisher) publishChildState(snap state.ChildSnapshot) {
	uid := snap.Child.UID

	data, err := json.Marshal(snap.Stats)
	if err != nil {
		p.log.Error("failed to marshal stats state", "child", uid, "error", err)
		return
	}
	p.publish(p.childTopic(uid, "stats/state"), string(data), true)

	p.publishLastEvent(uid, "last_sleep", snap.LastSleep)
	p.publishLastEvent(uid, "last_feed", snap.LastFeed)
	p.publishLastEvent(uid, "last_diaper", snap.LastDiaper)

	if snap.NextEvent != nil {
		p.publish(p.childTopic(uid, "next_event/state"), snap.NextEvent.Summary, true)
		p.publishEventAttributes(p.childTopic(uid, "next_event/attributes"), snap.NextEvent)
	} else {
		p.publish(p.childTopic(uid, "next_event/state"), "none", true)
	}
}

// publishLastEvent publishes one last-event timestamp sensor. A child that
// has no such event yet simply keeps its previous retained value.
func (p *HAPublisher) publishLastEvent(childUID, objectID string, ev *events.Event) {
	if ev == nil {
		return
	}
	p.publish(p.childTopic(childUID, objectID+"/state"), ev.Start.Format(time.RFC3339), true)
	p.publishEventAttributes(p.childTopic(childUID, objectID+"/attributes"), ev)
}

func (p *HAPublisher) publishEventAttributes(topic string, ev *events.Event) {
	payload := map[string]interface{}{
		"start":       ev.Start.Format(time.RFC3339),
		"end":         ev.End.Format(time.RFC3339),
		"summary":     ev.Summary,
		"description": ev.Description,
		"category":    ev.Category,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal event attributes", "topic", topic, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

// ---------------------------------------------------------------------------
// EventBus loop
// ---------------------------------------------------------------------------

func (p *HAPublisher) eventLoop(ch <-chan state.Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopC:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *HAPublisher) handleEvent(evt state.Event) {
	switch evt.Type {
	case state.EventSnapshotUpdate:
		snap, ok := evt.Data.(state.ChildSnapshot)
		if !ok {
			p.log.Warn("unexpected data type for snapshot_update")
			return
		}
		p.publishChildState(snap)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// topic builds a full topic path: {prefix}/{device_id}/{suffix}.
func (p *HAPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.DeviceID, suffix)
}

// childTopic builds a per-child topic path.
func (p *HAPublisher) childTopic(childUID, suffix string) string {
	return p.topic(fmt.Sprintf("%s/%s", childUID, suffix))
}

// publish is a convenience wrapper that publishes a message and logs errors.
func (p *HAPublisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}
