package domain

// Chat roles. Only staff chats may issue back-office commands.
const (
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

// Chat identifies a conversation and the role of the counterpart.
type Chat struct {
	ID   string
	Role string
}

// Reaction is an emoji reaction on a message previously sent by the bridge.
type Reaction struct {
	ChatID    string
	MessageID string
	Emoji     string
}
