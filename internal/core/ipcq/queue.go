package ipcq

// Peer marks an actor type as the peer of O. Both sides of a queue must
// declare each other:
//
//	func (*Child) PeerOf(*Parent) {}
//	func (*Parent) PeerOf(*Child) {}
type Peer[O any] interface {
	PeerOf(O)
}

// ProducerActor is an actor type that may produce to peer C.
type ProducerActor[C any] interface {
	Host
	Peer[C]
}

// ConsumerActor is an actor type that may consume from peer P.
type ConsumerActor[P any] interface {
	Host
	Peer[P]
}

// Queue pairs a producer and a consumer for one fresh ID. Exactly one half is
// bound to the local actor; the other is meant to be handed to the peer.
type Queue[P ProducerActor[C], C ConsumerActor[P]] struct {
	producer *Producer[P]
	consumer *Consumer[C]
}

// New creates a queue whose producer is bound to producerActor. The
// unbound consumer should be sent to the peer of type C.
func New[P ProducerActor[C], C ConsumerActor[P]](producerActor P) *Queue[P, C] {
	id := NewID()
	return &Queue[P, C]{
		producer: newProducer[P](id, producerActor.Base()),
		consumer: newConsumer[C](id, nil),
	}
}

// NewForConsumer creates a queue whose consumer is bound to consumerActor.
func NewForConsumer[P ProducerActor[C], C ConsumerActor[P]](consumerActor C) *Queue[P, C] {
	id := NewID()
	return &Queue[P, C]{
		producer: newProducer[P](id, nil),
		consumer: newConsumer[C](id, consumerActor.Base()),
	}
}

// ID returns the identifier shared by both halves.
func (q *Queue[P, C]) ID() ID {
	if q.producer != nil {
		return q.producer.id
	}
	if q.consumer != nil {
		return q.consumer.id
	}
	return IllegalID
}

// TakeProducer moves the producer out of the queue. Later calls return nil.
func (q *Queue[P, C]) TakeProducer() *Producer[P] {
	p := q.producer
	q.producer = nil
	return p
}

// TakeConsumer moves the consumer out of the queue. Later calls return nil.
func (q *Queue[P, C]) TakeConsumer() *Consumer[C] {
	c := q.consumer
	q.consumer = nil
	return c
}
