package events

// Topic constants for domain events emitted by checkout.
const (
	TopicOrderCreated      = "order.created"
	TopicOrderFailed       = "order.failed"
	TopicDiscountRedeemed  = "discount.redeemed"
	TopicCheckoutCompleted = "checkout.completed"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderFailed,
		TopicDiscountRedeemed,
		TopicCheckoutCompleted,
	}
}
