package reorgfeed

import (
	"github.com/Shopify/sarama"
)

// KafkaSink publishes events to a single Kafka topic via an async
// producer, the way klaytn's chaindatafetcher Kafka broker fires and
// forgets block events rather than waiting on a synchronous ack.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaSink dials brokers and returns a sink publishing to topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = false

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

// Publish enqueues ev on the producer's input channel; delivery is
// asynchronous and best-effort.
func (s *KafkaSink) Publish(ev ReorgEvent) error {
	data, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(ev.TipHash),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Close shuts the underlying producer down, flushing any buffered
// messages.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
