package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/smarttransit/bus-booking-backend/internal/models"
)

func topicFor(eventName string) string {
	return "events." + eventName
}

var marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

// Service owns the event bus and the router that feeds event handlers
type Service struct {
	transport *Transport
	router    *message.Router
	processor *cqrs.EventProcessor
	bus       *cqrs.EventBus
	logger    watermill.LoggerAdapter
}

// NewService wires the event bus, router and processor over transport
func NewService(transport *Transport, logger watermill.LoggerAdapter) (*Service, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(dropAfterRetries(logger))
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		Logger:          logger,
	}.Middleware)

	bus, err := cqrs.NewEventBusWithConfig(transport.Publisher, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			return topicFor(params.EventName), nil
		},
		Marshaler: marshaler,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	processor, err := cqrs.NewEventProcessorWithConfig(router, cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return topicFor(params.EventName), nil
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return transport.NewSubscriber(params.HandlerName)
		},
		Marshaler: marshaler,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event processor: %w", err)
	}

	return &Service{
		transport: transport,
		router:    router,
		processor: processor,
		bus:       bus,
		logger:    logger,
	}, nil
}

// AddHandlers registers handlers; call before Run
func (s *Service) AddHandlers(handlers ...cqrs.EventHandler) error {
	return s.processor.AddHandlers(handlers...)
}

// Run blocks until ctx is cancelled or the router fails
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting event router", watermill.LogFields{"transport": s.transport.Name})
	return s.router.Run(ctx)
}

// Running is closed once every handler is subscribed
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router and the publisher
func (s *Service) Close() error {
	if err := s.router.Close(); err != nil {
		return err
	}
	return s.transport.Publisher.Close()
}

// BookingConfirmed publishes a BookingConfirmed event
func (s *Service) BookingConfirmed(ctx context.Context, booking *models.Booking, bus *models.Bus) error {
	return s.bus.Publish(ctx, &BookingConfirmed{
		Header:      NewHeader(),
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		Seats:       append([]int(nil), booking.SeatsBooked...),
		TotalAmount: booking.TotalAmount,
		Trip:        tripOf(bus),
	})
}

// BookingCancelled publishes a BookingCancelled event
func (s *Service) BookingCancelled(ctx context.Context, booking *models.Booking, bus *models.Bus) error {
	return s.bus.Publish(ctx, &BookingCancelled{
		Header:       NewHeader(),
		BookingID:    booking.ID,
		UserID:       booking.UserID,
		Seats:        append([]int(nil), booking.SeatsBooked...),
		RefundAmount: booking.TotalAmount,
		Trip:         tripOf(bus),
	})
}

// dropAfterRetries acks a message whose handler still fails after the retry
// middleware gave up. Side effects here are best effort.
func dropAfterRetries(logger watermill.LoggerAdapter) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			produced, err := h(msg)
			if err != nil {
				logger.Error("Dropping event after retries", err, watermill.LogFields{
					"message_uuid": msg.UUID,
					"handler":      message.HandlerNameFromCtx(msg.Context()),
				})
				return nil, nil
			}
			return produced, nil
		}
	}
}
