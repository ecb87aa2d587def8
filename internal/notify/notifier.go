package notify

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/camera"
)

// queueSize bounds the events waiting to be published; beyond it events
// are dropped rather than stall negotiation
const queueSize = 64

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// Notifier is a camera.Observer that publishes every event as JSON on
// {topic}/{host}/events, and session state retained on {topic}/{host}/state.
// Publishing happens on its own goroutine.
type Notifier struct {
	pub   Publisher
	topic string
	log   zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan message
	done   chan struct{}
}

func New(pub Publisher, topic string, log zerolog.Logger) *Notifier {
	n := &Notifier{
		pub:   pub,
		topic: strings.TrimSuffix(topic, "/"),
		log:   log,
		queue: make(chan message, queueSize),
		done:  make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *Notifier) loop() {
	defer close(n.done)
	for m := range n.queue {
		if err := n.pub.Publish(m.topic, 0, m.retained, m.payload); err != nil {
			n.log.Warn().Err(err).Str("topic", m.topic).Msg("[mqtt] publish")
		}
	}
}

// Topic returns the topic for a host and a leaf
func (n *Notifier) Topic(host, leaf string) string {
	return n.topic + "/" + topicSafe(host) + "/" + leaf
}

// topicSafe replaces the MQTT wildcard and level characters
func topicSafe(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

func (n *Notifier) OnEvent(e camera.Event) {
	n.enqueue(n.Topic(e.Host, "events"), false, e)
}

// PublishState publishes the retained state of the session connected to host
func (n *Notifier) PublishState(host string, st camera.State) {
	n.enqueue(n.Topic(host, "state"), true, st)
}

func (n *Notifier) enqueue(topic string, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		n.log.Warn().Err(err).Str("topic", topic).Msg("[mqtt] encode")
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- message{topic: topic, retained: retained, payload: payload}:
	default:
		n.log.Warn().Str("topic", topic).Msg("[mqtt] queue full, event dropped")
	}
}

// Close publishes what is queued and stops the publishing goroutine
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}
