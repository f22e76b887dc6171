package events

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	redisclient "github.com/quorumdao/govx/pkg/redis"
)

// Topics, one per successful mutating operation.
const (
	TopicTemperatureCheckCreated = "temperature_check.created"
	TopicTemperatureCheckVoted   = "temperature_check.voted"
	TopicProposalElevated        = "proposal.elevated"
	TopicProposalVoted           = "proposal.voted"
	TopicParametersUpdated       = "parameters.updated"
	TopicDelegationMade          = "delegation.made"
	TopicDelegationRemoved       = "delegation.removed"
)

// ChannelPrefix namespaces the redis pub/sub channels: "govx:<topic>".
const ChannelPrefix = "govx:"

// Event is the structured notification emitted after a successful mutation,
// carrying the operation's key identifiers and resulting values for
// external indexers.
type Event struct {
	Topic   string         `json:"topic"`
	At      int64          `json:"at"`
	Payload map[string]any `json:"payload"`
}

// Emitter receives one event per successful mutating operation. Emission is
// observability only: implementations must never fail the operation.
type Emitter interface {
	Emit(ev Event)
}

// Nop discards events. Used when no sink is configured.
type Nop struct{}

func (Nop) Emit(Event) {}

// Publisher sends events to redis pub/sub through a small worker pool so
// slow or absent subscribers never block the mutating operation.
type Publisher struct {
	logger *zap.Logger
	redis  *redisclient.Client
	pool   pond.Pool
}

func NewPublisher(logger *zap.Logger, redis *redisclient.Client) *Publisher {
	return &Publisher{
		logger: logger.With(zap.String("module", "events")),
		redis:  redis,
		pool:   pond.NewPool(4, pond.WithQueueSize(1024)),
	}
}

func (p *Publisher) Emit(ev Event) {
	p.pool.Submit(func() {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.Warn("failed to encode event", zap.String("topic", ev.Topic), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		p.redis.Publish(ctx, ChannelPrefix+ev.Topic, payload)
	})
}

// Close drains pending publishes.
func (p *Publisher) Close() {
	p.pool.StopAndWait()
}
