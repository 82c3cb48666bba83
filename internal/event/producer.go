package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civitas/user-service/internal/domain"
	pkgkafka "github.com/civitas/user-service/pkg/kafka"
	"github.com/civitas/user-service/pkg/logger"
	"github.com/civitas/user-service/pkg/middleware"
)

// Kafka topic constants for user domain events.
const (
	TopicUserCreated = "civitas.user.created"
	TopicUserUpdated = "civitas.user.updated"
	TopicUserDeleted = "civitas.user.deleted"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the user service.
const SourceUserService = "user-service"

// MetadataActor names the metadata key holding the authenticated subject
// that caused the change.
const MetadataActor = "actor"

// UserData is the payload for user.created and user.updated events.
type UserData struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	AddressCount int    `json:"address_count"`
	// PrimaryCountry is the country of the primary address's detail, if any.
	PrimaryCountry string `json:"primary_country,omitempty"`
}

// UserDeletedData is the payload for a user.deleted event.
type UserDeletedData struct {
	ID string `json:"id"`
}

// Publisher is the subset of pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the user service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserCreated publishes a user.created event.
func (p *Producer) PublishUserCreated(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserCreated, user.ID, newUserData(user))
}

// PublishUserUpdated publishes a user.updated event.
func (p *Producer) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserUpdated, user.ID, newUserData(user))
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicUserDeleted, userID, UserDeletedData{ID: userID})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceUserService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if sub := middleware.SubjectFromContext(ctx); sub != "" {
		event.WithMetadata(MetadataActor, sub)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published user event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

func newUserData(u *domain.User) UserData {
	data := UserData{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		AddressCount: len(u.Addresses),
	}
	if primary, ok := u.PrimaryAddress(); ok && primary.Detail != nil {
		data.PrimaryCountry = primary.Detail.Country
	}
	return data
}
