package twin

import (
	"strconv"
	"sync"
)

const subscriptionBuffer = 32

func NotificationsTopic(userID int64) string {
	return "notifications:" + strconv.FormatInt(userID, 10)
}

func ChatTopic(roomID int64) string {
	return "chat:" + strconv.FormatInt(roomID, 10)
}

// Subscription receives frames published to one topic.
type Subscription struct {
	topic  string
	frames chan []byte
	kicked chan struct{}
	once   sync.Once
}

func (s *Subscription) Frames() <-chan []byte {
	return s.frames
}

// Kicked is closed when the hub drops the subscriber.
func (s *Subscription) Kicked() <-chan struct{} {
	return s.kicked
}

func (s *Subscription) kick() {
	s.once.Do(func() { close(s.kicked) })
}

// Hub fans frames out to websocket subscribers. Slow subscribers lose frames
// rather than block publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{
		topic:  topic,
		frames: make(chan []byte, subscriptionBuffer),
		kicked: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.topic)
		}
	}
}

// Publish returns how many subscribers accepted the frame.
func (h *Hub) Publish(topic string, frame []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for s := range h.subs[topic] {
		select {
		case s.frames <- frame:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// KickAll drops every subscriber on every topic.
func (h *Hub) KickAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.subs {
		for s := range set {
			s.kick()
		}
		delete(h.subs, topic)
	}
}
