package broker

import "sync"

type publication[TID comparable, TPayload any] struct {
	ID      TID
	Payload TPayload
}

type subscription[TID comparable, TPayload any] struct {
	ID      TID
	Channel chan TPayload
}

// Broker fans out payloads published under an ID to every current subscriber of that ID.
//
// This kind of broker is useful for streaming session events through SSE. The producer is the session that owns the
// ID and the consumers are the HTTP handlers serving the SSE streams. A browser reconnecting after connectivity
// issues simply subscribes again and receives the events published from then on; the handler sends the persisted
// state first so that nothing is lost.
//
// A subscriber that does not keep up misses payloads instead of blocking the producer.
type Broker[TID comparable, TPayload any] struct {
	buffer             int
	stopOnce           sync.Once
	stopChannel        chan struct{}
	publishChannel     chan publication[TID, TPayload]
	subscribeChannel   chan subscription[TID, TPayload]
	unsubscribeChannel chan subscription[TID, TPayload]
	closeChannel       chan TID
}

// NewBroker creates a new Broker whose subscriber channels hold up to buffer payloads. Start() must be running for
// the other methods to return. Use Stop() to stop it.
func NewBroker[TID comparable, TPayload any](buffer int) *Broker[TID, TPayload] {
	return &Broker[TID, TPayload]{
		buffer:             buffer,
		stopOnce:           sync.Once{},
		stopChannel:        make(chan struct{}),
		publishChannel:     make(chan publication[TID, TPayload]),
		subscribeChannel:   make(chan subscription[TID, TPayload]),
		unsubscribeChannel: make(chan subscription[TID, TPayload]),
		closeChannel:       make(chan TID),
	}
}

// Start listening for publish, subscribe, unsubscribe, and close events. This function blocks until Stop() is called,
// so it should be called in a goroutine. It does not handle panics, so it should be wrapped in a recover.
func (b *Broker[TID, TPayload]) Start() {
	subscriberLists := map[TID]map[chan TPayload]struct{}{}
	for {
		select {
		case <-b.stopChannel:
			for _, subscribers := range subscriberLists {
				for c := range subscribers {
					close(c)
				}
			}
			return

		case s := <-b.subscribeChannel:
			subscribers := subscriberLists[s.ID]
			if subscribers == nil {
				subscribers = map[chan TPayload]struct{}{}
				subscriberLists[s.ID] = subscribers
			}
			subscribers[s.Channel] = struct{}{}

		case s := <-b.unsubscribeChannel:
			subscribers := subscriberLists[s.ID]
			if _, ok := subscribers[s.Channel]; !ok {
				// Already closed by close or stop.
				break
			}
			delete(subscribers, s.Channel)
			close(s.Channel)
			if len(subscribers) == 0 {
				delete(subscriberLists, s.ID)
			}

		case p := <-b.publishChannel:
			for c := range subscriberLists[p.ID] {
				select {
				case c <- p.Payload:
				default:
				}
			}

		case id := <-b.closeChannel:
			for c := range subscriberLists[id] {
				close(c)
			}
			delete(subscriberLists, id)
		}
	}
}

// Stop the goroutine that handles the broker. All subscriber channels are closed. Calling Stop again has no effect.
func (b *Broker[TID, TPayload]) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChannel)
	})
}

// Subscribe to the payloads published with ID. The returned channel is closed when the subscription ends through the
// returned unsubscribe function, Close, or Stop. A subscription made after Stop returns a closed channel.
func (b *Broker[TID, TPayload]) Subscribe(id TID) (<-chan TPayload, func()) {
	channel := make(chan TPayload, b.buffer)
	s := subscription[TID, TPayload]{ID: id, Channel: channel}
	select {
	case b.subscribeChannel <- s:
	case <-b.stopChannel:
		close(channel)
		return channel, func() {}
	}
	unsubscribe := func() {
		select {
		case b.unsubscribeChannel <- s:
		case <-b.stopChannel:
		}
	}
	return channel, unsubscribe
}

// Publish payload to the current subscribers of ID.
func (b *Broker[TID, TPayload]) Publish(id TID, payload TPayload) {
	select {
	case b.publishChannel <- publication[TID, TPayload]{ID: id, Payload: payload}:
	case <-b.stopChannel:
	}
}

// Close ends every subscription of ID.
func (b *Broker[TID, TPayload]) Close(id TID) {
	select {
	case b.closeChannel <- id:
	case <-b.stopChannel:
	}
}
