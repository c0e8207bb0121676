package loyalty

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/plateful/plateful/internal/models"
)

// EventSink receives loyalty analytics events. Delivery is best-effort:
// callers log failures and move on, sink errors never block an order.
type EventSink interface {
	WriteEvent(topic string, msg []byte) error
	Close() error
}

// Publish serializes and writes an event, swallowing failures. Loyalty
// analytics must never interfere with the operation that produced them.
func Publish(sink EventSink, topic string, event *models.LoyaltyEvent) {
	if sink == nil {
		return
	}
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error serializing event: %v", err)
		return
	}
	if err := sink.WriteEvent(topic, msg); err != nil {
		log.Printf("Failed to write event to %s: %v", topic, err)
	}
}

type KafkaSink struct {
	producer sarama.SyncProducer
}

func NewKafkaSink(config *models.Config) (*KafkaSink, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // Must be true for SyncProducer
	saramaConfig.Net.DialTimeout = 30 * time.Second
	saramaConfig.Net.ReadTimeout = 30 * time.Second
	saramaConfig.Net.WriteTimeout = 30 * time.Second

	if config.SessionTimeoutMs > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	} else {
		saramaConfig.Consumer.Group.Session.Timeout = 45 * time.Second
	}

	brokerList := strings.Split(config.KafkaBrokerList, ",")

	producer, err := sarama.NewSyncProducer(brokerList, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}

	log.Printf("Sarama producer created successfully with brokers %v", brokerList)
	return &KafkaSink{producer: producer}, nil
}

func (s *KafkaSink) WriteEvent(topic string, msg []byte) error {
	if s.producer == nil {
		return fmt.Errorf("Sarama producer is not initialized")
	}
	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(msg),
	})
	if err != nil {
		log.Printf("Failed to send message to topic %s: %v", topic, err)
		return err
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

type ConsoleSink struct{}

func (c *ConsoleSink) WriteEvent(topic string, msg []byte) error {
	_, err := fmt.Printf("%s: %s\n", topic, msg)
	return err
}

func (c *ConsoleSink) Close() error { return nil }

// FileSink appends one JSON line per event to a file per topic.
type FileSink struct {
	mu       sync.Mutex
	files    map[string]*os.File
	basePath string
}

func NewFileSink(basePath string) *FileSink {
	return &FileSink{
		files:    make(map[string]*os.File),
		basePath: basePath,
	}
}

func (f *FileSink) WriteEvent(topic string, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[topic]
	if !ok {
		filename := fmt.Sprintf("%s/%s.jsonl", f.basePath, topic)
		var err error
		file, err = os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to create file for topic %s: %w", topic, err)
		}
		f.files[topic] = file
	}

	if _, err := file.Write(append(msg, '\n')); err != nil {
		return err
	}
	return nil
}

func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		file.Close()
	}
	f.files = make(map[string]*os.File)
	return nil
}
