package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"orderbridge/internal/domain"
)

// ReactionDone is the emoji that marks an announced order as done.
const ReactionDone = "✅"

// Transport is the chat side of the bridge.
type Transport interface {
	Send(ctx context.Context, chatID, text string) (messageID string, err error)
	Reply(ctx context.Context, chatID, messageID, text string) error
}

// Correlator resolves reacted messages to orders.
type Correlator interface {
	BeginGeneration(chatID string) uint64
	Record(chatID, messageID, orderID string)
	Resolve(chatID, messageID string) (string, bool)
}

type OrderBackend interface {
	MarkDone(ctx context.Context, orderID, tenantKey string) (bool, error)
}

// Bridge executes command plans over the transport and turns reactions into order updates
// for a single tenant.
type Bridge struct {
	tenantKey  string
	dispatcher *Dispatcher
	index      Correlator
	transport  Transport
	orders     OrderBackend
	logger     *slog.Logger
}

func NewBridge(tenantKey string, d *Dispatcher, ix Correlator, t Transport, orders OrderBackend, logger *slog.Logger) (*Bridge, error) {
	if strings.TrimSpace(tenantKey) == "" {
		return nil, errors.New("usecase: tenant key must not be empty")
	}
	if d == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	if ix == nil {
		return nil, errors.New("usecase: correlator must not be nil")
	}
	if t == nil {
		return nil, errors.New("usecase: transport must not be nil")
	}
	if orders == nil {
		return nil, errors.New("usecase: order backend must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		tenantKey:  tenantKey,
		dispatcher: d,
		index:      ix,
		transport:  t,
		orders:     orders,
		logger:     logger.With("tenant", tenantKey),
	}, nil
}

// HandleCommand plans and executes the response to a message received in chat.
func (b *Bridge) HandleCommand(ctx context.Context, chat domain.Chat, messageID, text string) error {
	plan, err := b.dispatcher.Plan(ctx, text, b.tenantKey, chat)
	if err != nil {
		return err
	}

	switch plan.Kind {
	case PlanReply:
		if err := b.transport.Reply(ctx, chat.ID, messageID, plan.Text); err != nil {
			return newError(ErrorUpstream, "transport_reply_error", err)
		}
		return nil
	case PlanListOrders:
		return b.announce(ctx, chat.ID, plan)
	default:
		return nil
	}
}

// announce opens a new generation before anything is sent, so reactions on the
// previous listing stop resolving as soon as a new one starts.
func (b *Bridge) announce(ctx context.Context, chatID string, plan Plan) error {
	gen := b.index.BeginGeneration(chatID)

	if _, err := b.transport.Send(ctx, chatID, plan.Header); err != nil {
		return newError(ErrorUpstream, "transport_send_error", err)
	}
	for _, item := range plan.Items {
		msgID, err := b.transport.Send(ctx, chatID, item.Text)
		if err != nil {
			return newError(ErrorUpstream, "transport_send_error", fmt.Errorf("announce order %s: %w", item.OrderID, err))
		}
		b.index.Record(chatID, msgID, item.OrderID)
	}
	if _, err := b.transport.Send(ctx, chatID, plan.Footer); err != nil {
		return newError(ErrorUpstream, "transport_send_error", err)
	}

	b.logger.Info("orders announced", "chat", chatID, "orders", len(plan.Items), "generation", gen)
	return nil
}

// HandleReaction marks the order announced by the reacted message as done.
// It reports whether the reaction resolved to an order.
func (b *Bridge) HandleReaction(ctx context.Context, r domain.Reaction) (bool, error) {
	if r.Emoji != ReactionDone || r.ChatID == "" || r.MessageID == "" {
		return false, nil
	}
	orderID, ok := b.index.Resolve(r.ChatID, r.MessageID)
	if !ok {
		return false, nil
	}

	done, err := b.orders.MarkDone(ctx, orderID, b.tenantKey)
	if err != nil {
		b.logger.Error("mark order done failed", "order", orderID, "err", err)
		done = false
	}

	text := fmt.Sprintf("Pedido *#%s* marcado como hecho correctamente ✅", orderID)
	if !done {
		text = fmt.Sprintf("No se pudo marcar el pedido *#%s* como hecho.", orderID)
	}
	if replyErr := b.transport.Reply(ctx, r.ChatID, r.MessageID, text); replyErr != nil {
		return true, newError(ErrorUpstream, "transport_reply_error", replyErr)
	}
	if err != nil {
		return true, newError(ErrorUpstream, "order_update_error", err)
	}
	return true, nil
}
