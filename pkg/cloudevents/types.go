package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types published by the ledger
const (
	MovementReserved    = "inventory.movement.reserve"
	MovementReleased    = "inventory.movement.release"
	MovementReceived    = "inventory.movement.receive"
	MovementShipped     = "inventory.movement.ship"
	MovementTransferOut = "inventory.movement.transfer-out"
	MovementTransferIn  = "inventory.movement.transfer-in"
	MovementAdjusted    = "inventory.movement.adjust"
	StockLow            = "inventory.stock.low"
)

// Event types consumed from upstream services
const (
	OrderPlaced           = "order.placed"
	OrderCancelled        = "order.cancelled"
	OrderShipped          = "order.shipped"
	PurchaseOrderReceived = "purchase-order.received"
)

// Source identifies this service in the CloudEvents source attribute
const SourceInventoryLedger = "/inventory/ledger"

// CloudEvent is a CloudEvents v1.0 envelope with the ledger's extensions
type CloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	CorrelationID string `json:"correlationid,omitempty"`
	VariantID     string `json:"variantid,omitempty"`

	// W3C trace context
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// DecodeData decodes the event data into v
func (e *CloudEvent) DecodeData(v interface{}) error {
	var raw []byte
	switch d := e.Data.(type) {
	case nil:
		return fmt.Errorf("event %s has no data", e.ID)
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to re-encode event data: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}

// StockLine is one variant/quantity pair of an upstream order or purchase order
type StockLine struct {
	VariantID  string `json:"variantId"`
	LocationID string `json:"locationId,omitempty"`
	Quantity   int    `json:"quantity"`
}

// OrderEventData is the payload of order.placed, order.cancelled and order.shipped
type OrderEventData struct {
	OrderID string      `json:"orderId"`
	ActorID string      `json:"actorId,omitempty"`
	Lines   []StockLine `json:"lines"`
}

// PurchaseOrderReceivedData is the payload of purchase-order.received
type PurchaseOrderReceivedData struct {
	PurchaseOrderID string      `json:"purchaseOrderId"`
	ReceivedBy      string      `json:"receivedBy,omitempty"`
	Lines           []StockLine `json:"lines"`
}
