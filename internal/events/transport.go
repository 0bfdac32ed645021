package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// consumerGroupPrefix namespaces Redis consumer groups per handler
const consumerGroupPrefix = "bus-booking."

// Transport is the message backend behind the event bus
type Transport struct {
	Publisher     message.Publisher
	NewSubscriber func(handlerName string) (message.Subscriber, error)
	Name          string
}

// NewRedisTransport stores events in Redis streams; each handler reads
// through its own consumer group so every handler sees every event once.
func NewRedisTransport(rdb redis.UniversalClient, logger watermill.LoggerAdapter) (*Transport, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Transport{
		Publisher: publisher,
		NewSubscriber: func(handlerName string) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        rdb,
				ConsumerGroup: consumerGroupPrefix + handlerName,
			}, logger)
		},
		Name: "redis-streams",
	}, nil
}

// NewInMemoryTransport delivers events inside the process. Events published
// while no handler is subscribed are dropped unless persistent is set.
func NewInMemoryTransport(logger watermill.LoggerAdapter, persistent bool) *Transport {
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: persistent}, logger)

	return &Transport{
		Publisher: pubSub,
		NewSubscriber: func(string) (message.Subscriber, error) {
			return pubSub, nil
		},
		Name: "in-memory",
	}
}
