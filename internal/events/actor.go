package events

// Actor is a named Subscriber backed by a handler func.
type Actor struct {
	name    string
	handler func(channel string, e Event)
}

// NewActor creates an Actor. Use the returned pointer for Connect and Disconnect.
func NewActor(name string, handler func(channel string, e Event)) *Actor {
	return &Actor{name: name, handler: handler}
}

// Name returns the actor name.
func (a *Actor) Name() string { return a.name }

// OnEvent forwards to the handler.
func (a *Actor) OnEvent(channel string, e Event) {
	if a.handler != nil {
		a.handler(channel, e)
	}
}

// ConnectAll subscribes s to each named channel, stopping at the first unknown one.
func (b *Bus) ConnectAll(s Subscriber, names ...string) error {
	for _, name := range names {
		if err := b.Connect(name, s); err != nil {
			return err
		}
	}
	return nil
}
