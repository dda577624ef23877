package usecase

import (
	"context"
	"errors"
	"strings"

	"orderbridge/internal/domain"
)

// Chat commands understood from staff chats.
const (
	CommandListOrders = "📋"
	CommandForget     = "!borrar"
)

type OrderLister interface {
	ListOrders(ctx context.Context, tenantKey string) ([]domain.Order, error)
}

type PlanKind int

const (
	PlanNoop PlanKind = iota
	PlanReply
	PlanListOrders
)

// Plan is what the bridge should do in response to a command.
type Plan struct {
	Kind   PlanKind
	Text   string // PlanReply
	Header string // PlanListOrders
	Items  []PlanItem
	Footer string
}

// PlanItem is one announced order.
type PlanItem struct {
	Text    string
	OrderID string
}

type Dispatcher struct {
	orders OrderLister
}

func NewDispatcher(orders OrderLister) (*Dispatcher, error) {
	if orders == nil {
		return nil, errors.New("usecase: order lister must not be nil")
	}
	return &Dispatcher{orders: orders}, nil
}

// Plan turns a command from chat into an action plan. Non-staff chats always get PlanNoop.
func (d *Dispatcher) Plan(ctx context.Context, command, tenantKey string, chat domain.Chat) (Plan, error) {
	if chat.Role != domain.RoleStaff {
		return Plan{Kind: PlanNoop}, nil
	}

	switch strings.TrimSpace(command) {
	case CommandListOrders:
		orders, err := d.orders.ListOrders(ctx, tenantKey)
		if err != nil {
			return Plan{}, newError(ErrorUpstream, "order_list_error", err)
		}
		items := make([]PlanItem, 0, len(orders))
		for _, o := range orders {
			if o.Status != domain.OrderStatusPreparing {
				continue
			}
			items = append(items, PlanItem{Text: renderOrder(o), OrderID: o.ID})
		}
		if len(items) == 0 {
			return Plan{Kind: PlanReply, Text: noOrders}, nil
		}
		return Plan{Kind: PlanListOrders, Header: listHeader, Items: items, Footer: listFooter}, nil

	case CommandForget:
		return Plan{Kind: PlanReply, Text: forgetReply}, nil

	default:
		return Plan{Kind: PlanNoop}, nil
	}
}
