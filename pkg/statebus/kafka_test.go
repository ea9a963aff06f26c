package statebus

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestNewKafkaConsumerValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  KafkaConfig
	}{
		{"no brokers", KafkaConfig{Topic: "events", GroupID: "api"}},
		{"blank brokers", KafkaConfig{Brokers: []string{" ", ""}, Topic: "events", GroupID: "api"}},
		{"no topic", KafkaConfig{Brokers: []string{"b1:9092"}, GroupID: "api"}},
		{"no group", KafkaConfig{Brokers: []string{"b1:9092"}, Topic: "events"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewKafkaConsumer(tc.cfg); err == nil {
				t.Fatalf("invalid config accepted: %+v", tc.cfg)
			}
		})
	}
}

func TestNewKafkaConsumerStartsAtTail(t *testing.T) {
	c, err := NewKafkaConsumer(KafkaConfig{
		Brokers: []string{" b1:9092 ", "", "b2:9092"},
		Topic:   "events",
		GroupID: "api",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	reader, ok := c.reader.(*kafka.Reader)
	if !ok {
		t.Fatalf("unexpected reader type: %T", c.reader)
	}
	cfg := reader.Config()
	if len(cfg.Brokers) != 2 || cfg.Brokers[0] != "b1:9092" || cfg.Brokers[1] != "b2:9092" {
		t.Fatalf("broker list not trimmed: %v", cfg.Brokers)
	}
	if cfg.StartOffset != kafka.LastOffset {
		t.Fatalf("fresh group would replay history: %d", cfg.StartOffset)
	}
}

func TestKafkaConsumerZeroValueIsSafe(t *testing.T) {
	var c *KafkaConsumer
	if _, err := c.ReadMessage(context.Background()); err == nil {
		t.Fatalf("nil consumer read succeeded")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil consumer close errored: %v", err)
	}
	empty := &KafkaConsumer{}
	if _, err := empty.ReadMessage(context.Background()); err == nil {
		t.Fatalf("uninitialized consumer read succeeded")
	}
}
