package events

type ProducerOptions func(e *EventProducer)

func WithSource(source string) ProducerOptions {
	return func(e *EventProducer) {
		e.source = source
	}
}

func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}
