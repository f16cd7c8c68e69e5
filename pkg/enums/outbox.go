package enums

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateLoyaltyAccount OutboxAggregateType = "loyalty_account"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateOrder, AggregateLoyaltyAccount}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderPlaced    OutboxEventType = "order_placed"
	EventOrderAdvanced  OutboxEventType = "order_advanced"
	EventOrderCancelled OutboxEventType = "order_cancelled"
	EventOrderModified  OutboxEventType = "order_modified"
	EventPointsRedeemed OutboxEventType = "points_redeemed"
)

var eventTypes = set[OutboxEventType]{
	EventOrderPlaced,
	EventOrderAdvanced,
	EventOrderCancelled,
	EventOrderModified,
	EventPointsRedeemed,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }
