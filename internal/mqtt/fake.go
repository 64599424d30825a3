package mqtt

// Published is one recorded publication.
type Published struct {
	Topic    string
	Payload  string
	Retained bool
}

// FakeClient records broker interactions for test assertions.
type FakeClient struct {
	// Connected controls the return value of IsConnected.
	Connected bool

	// ConnectError, if set, is returned by Connect.
	ConnectError error

	// PublishError, if set, is returned by Publish.
	PublishError error

	Brokers      []string
	ClientIDs    []string
	Published    []Published
	Subscribed   []string
	Unsubscribed []string
	Disconnects  int

	inbox []Message
}

// NewFakeClient creates a disconnected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) Connect(broker, clientID, user, password string) error {
	f.Brokers = append(f.Brokers, broker)
	f.ClientIDs = append(f.ClientIDs, clientID)
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.Connected = true
	return nil
}

func (f *FakeClient) IsConnected() bool { return f.Connected }

func (f *FakeClient) Publish(topic string, payload []byte, retained bool) error {
	if !f.Connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Published{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

func (f *FakeClient) Subscribe(topic string) error {
	f.Subscribed = append(f.Subscribed, topic)
	return nil
}

func (f *FakeClient) Unsubscribe(topic string) error {
	f.Unsubscribed = append(f.Unsubscribed, topic)
	return nil
}

// Deliver queues an inbound message for the next Poll.
func (f *FakeClient) Deliver(topic, payload string) {
	f.inbox = append(f.inbox, Message{Topic: topic, Payload: []byte(payload)})
}

func (f *FakeClient) Poll(fn func(Message)) {
	msgs := f.inbox
	f.inbox = nil
	for _, m := range msgs {
		fn(m)
	}
}

func (f *FakeClient) Disconnect() {
	f.Disconnects++
	f.Connected = false
}

// Reset clears recorded interactions.
func (f *FakeClient) Reset() {
	f.Brokers = nil
	f.ClientIDs = nil
	f.Published = nil
	f.Subscribed = nil
	f.Unsubscribed = nil
	f.Disconnects = 0
	f.ConnectError = nil
	f.PublishError = nil
	f.inbox = nil
}
