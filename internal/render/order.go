package render

import (
	"fmt"
	"strings"

	"github.com/hyperjump/soroe/internal/models"
)

// SearchText renders an order into the text its embedding is computed from.
// Facets appear in a fixed order (identity, status, description, customer,
// line items, shipments, tags, due date) so embeddings are stable across runs
// for unchanged content.
func SearchText(o *models.Order) string {
	var b strings.Builder
	writeFacet(&b, "Order", o.JobNumber)
	writeFacet(&b, "Status", strings.ReplaceAll(o.Status, "_", " "))
	writeFacet(&b, "Description", o.Description)
	writeFacet(&b, "Customer", o.Customer)

	if len(o.LineItems) > 0 {
		items := make([]string, len(o.LineItems))
		for i, li := range o.LineItems {
			items[i] = fmt.Sprintf("%dx %s %s", li.Quantity, li.PartNumber, li.Description)
		}
		writeFacet(&b, "Items", strings.Join(items, "; "))
	}
	if len(o.Shipments) > 0 {
		shipments := make([]string, len(o.Shipments))
		for i, sh := range o.Shipments {
			shipments[i] = fmt.Sprintf("%s via %s", sh.Status, sh.Carrier)
		}
		writeFacet(&b, "Shipments", strings.Join(shipments, "; "))
	}
	if len(o.Tags) > 0 {
		writeFacet(&b, "Tags", strings.Join(o.Tags, " "))
	}
	writeFacet(&b, "Due", o.DueDate)
	return b.String()
}

// Metadata renders an order into the flat scalar map stored alongside its
// vector. Arrays are joined with a fixed delimiter and absent fields are
// omitted rather than written as null.
func Metadata(o *models.Order) map[string]interface{} {
	md := make(map[string]interface{})
	setIfPresent(md, "job_number", o.JobNumber)
	setIfPresent(md, "status", o.Status)
	setIfPresent(md, "description", o.Description)
	setIfPresent(md, "customer", o.Customer)
	setIfPresent(md, "due_date", o.DueDate)
	setIfPresent(md, "created_at", o.CreatedAt)

	if len(o.LineItems) > 0 {
		parts := make([]string, len(o.LineItems))
		for i, li := range o.LineItems {
			parts[i] = li.PartNumber
		}
		md["part_numbers"] = joinNonEmpty(parts)
		md["line_item_count"] = len(o.LineItems)
	}
	if len(o.Shipments) > 0 {
		carriers := make([]string, len(o.Shipments))
		statuses := make([]string, len(o.Shipments))
		for i, sh := range o.Shipments {
			carriers[i] = sh.Carrier
			statuses[i] = sh.Status
		}
		md["shipment_carriers"] = joinNonEmpty(carriers)
		md["shipment_statuses"] = joinNonEmpty(statuses)
	}
	if len(o.Tags) > 0 {
		md["tags"] = joinNonEmpty(o.Tags)
	}
	return md
}

func setIfPresent(md map[string]interface{}, key, value string) {
	if v := Normalize(value); v != "" {
		md[key] = v
	}
}
