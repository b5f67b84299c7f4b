// Package models defines core data structures for orders, vector documents, and sync runs.
package models

import "time"

// Order is a business record tracked for search indexing. It is owned by the
// upstream order-management system and read-only to this engine.
type Order struct {
	JobNumber   string     `json:"job_number"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	Customer    string     `json:"customer"`
	LineItems   []LineItem `json:"line_items,omitempty"`
	Shipments   []Shipment `json:"shipments,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	CreatedAt   string     `json:"created_at,omitempty"`

	// FetchedAt is freshness metadata set by the record source. It never
	// participates in change detection.
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

// LineItem is a single line on an order.
type LineItem struct {
	PartNumber  string `json:"part_number"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// Shipment is a shipment associated with an order.
type Shipment struct {
	Carrier     string `json:"carrier"`
	TrackingRef string `json:"tracking_ref,omitempty"`
	Status      string `json:"status"`
	ShippedAt   string `json:"shipped_at,omitempty"`
}

// VectorDocument is the unit written to the external vector index. ID is a
// pure function of the order identity, so re-upserting the same order
// overwrites rather than duplicates.
type VectorDocument struct {
	ID        string                 `json:"id"`
	Embedding []float32              `json:"embedding"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
