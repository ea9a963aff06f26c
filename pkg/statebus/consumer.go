// Package statebus bridges collaborator domain events published on a Kafka
// topic into the in-process domain bus, so writes performed by other
// processes still reach connected clients.
package statebus

import "context"

type Message struct {
	Value []byte
}

type Consumer interface {
	ReadMessage(ctx context.Context) (Message, error)
	Close() error
}
