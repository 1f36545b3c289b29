package orders

const (
	TopicOrderEvents    = "market.order.events"
	TopicCheckoutEvents = "market.checkout.events"
)

// Partition key = order_id (or checkout_id), so every event of one entity keeps its order.
func PartitionKey(id string) []byte { return []byte(id) }
