package domain

// OrderStatusPreparing marks orders still waiting in the kitchen.
const OrderStatusPreparing = "preparing"

// Order is the subset of a back-office order needed to announce it in chat.
type Order struct {
	ID       string
	Status   string
	Customer string
	Total    float64
	IsPickup bool
	Address  string
	Lines    []OrderLine
}

// OrderLine is either a product line or a menu line with selected products.
type OrderLine struct {
	Quantity int
	Product  string
	Menu     string
	// Selected holds product names chosen inside a menu.
	Selected []string
}
