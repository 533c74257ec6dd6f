package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/0xsj/overwatch-pkg/log"

	"github.com/0xsj/overwatch-revocation/internal/port/inbound/command"
)

// Command subjects, relative to the subject prefix.
const (
	SubjectRevokeToken         = "commands.revocation.token"
	SubjectRevokeAllUserTokens = "commands.revocation.user"
)

const defaultHandleTimeout = 5 * time.Second

// Subscriber is the subset of *nats.Conn used to consume commands.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

var _ Subscriber = (*nats.Conn)(nil)

// revokeTokenMessage is the wire form of a single-token revocation.
type revokeTokenMessage struct {
	UserID    string `json:"user_id"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
	Reason    string `json:"reason,omitempty"`
}

// revokeAllUserTokensMessage is the wire form of a user-wide revocation.
type revokeAllUserTokensMessage struct {
	UserID                  string `json:"user_id"`
	MaxTokenLifetimeSeconds int64  `json:"max_token_lifetime_seconds,omitempty"`
	Reason                  string `json:"reason,omitempty"`
}

// CommandConsumer applies revocation commands received over NATS, so that
// the service issuing tokens can revoke them on logout or password change.
type CommandConsumer struct {
	conn          Subscriber
	subjectPrefix string
	revokeToken   command.RevokeTokenHandler
	revokeAll     command.RevokeAllUserTokensHandler
	logger        log.Logger
	timeout       time.Duration

	subs []*nats.Subscription
}

// NewCommandConsumer creates a new CommandConsumer. Nothing is consumed until Start.
func NewCommandConsumer(
	conn Subscriber,
	subjectPrefix string,
	revokeToken command.RevokeTokenHandler,
	revokeAll command.RevokeAllUserTokensHandler,
	logger log.Logger,
) *CommandConsumer {
	if subjectPrefix == "" {
		subjectPrefix = "overwatch"
	}
	return &CommandConsumer{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		revokeToken:   revokeToken,
		revokeAll:     revokeAll,
		logger:        logger,
		timeout:       defaultHandleTimeout,
	}
}

// Start subscribes to the command subjects.
func (c *CommandConsumer) Start() error {
	handlers := map[string]nats.MsgHandler{
		c.subject(SubjectRevokeToken):         c.HandleRevokeToken,
		c.subject(SubjectRevokeAllUserTokens): c.HandleRevokeAllUserTokens,
	}

	for subject, handler := range handlers {
		sub, err := c.conn.Subscribe(subject, handler)
		if err != nil {
			_ = c.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
		c.logger.Info("consuming revocation commands", log.String("subject", subject))
	}

	return nil
}

// Stop removes all subscriptions.
func (c *CommandConsumer) Stop() error {
	var firstErr error
	for _, sub := range c.subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.subs = nil
	return firstErr
}

// HandleRevokeToken applies a single-token revocation message.
func (c *CommandConsumer) HandleRevokeToken(msg *nats.Msg) {
	var m revokeTokenMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		c.reject(msg, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.revokeToken.Handle(ctx, command.RevokeToken{
		UserID:    m.UserID,
		IssuedAt:  m.IssuedAt,
		ExpiresAt: time.Unix(m.ExpiresAt, 0),
		Reason:    m.Reason,
	})
	if err != nil {
		c.reject(msg, err)
	}
}

// HandleRevokeAllUserTokens applies a user-wide revocation message.
func (c *CommandConsumer) HandleRevokeAllUserTokens(msg *nats.Msg) {
	var m revokeAllUserTokensMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		c.reject(msg, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.revokeAll.Handle(ctx, command.RevokeAllUserTokens{
		UserID:           m.UserID,
		MaxTokenLifetime: time.Duration(m.MaxTokenLifetimeSeconds) * time.Second,
		Reason:           m.Reason,
	})
	if err != nil {
		c.reject(msg, err)
	}
}

func (c *CommandConsumer) reject(msg *nats.Msg, err error) {
	c.logger.Warn("failed to apply revocation command",
		log.String("subject", msg.Subject),
		log.String("error", err.Error()),
	)
}

func (c *CommandConsumer) subject(name string) string {
	return fmt.Sprintf("%s.%s", c.subjectPrefix, name)
}
