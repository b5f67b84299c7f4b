// Package fingerprint derives stable content fingerprints and vector IDs from orders.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/soroe/internal/models"
)

const vectorIDPrefix = "order:"

// Fingerprint is a hex-encoded digest of an order's search-relevant content.
type Fingerprint string

// Compute returns the content fingerprint for an order. It is pure and
// deterministic over an explicit field allow-list: identity, status,
// description, customer, line items, shipments, tags, due date, and
// creation date.
// Freshness metadata (FetchedAt) never contributes, so metadata churn does
// not register as a content change. Set-like fields are sorted before
// hashing so equivalent representations yield the same digest.
func Compute(o *models.Order) Fingerprint {
	var b strings.Builder
	writeField(&b, "job", o.JobNumber)
	writeField(&b, "status", o.Status)
	writeField(&b, "desc", o.Description)
	writeField(&b, "customer", o.Customer)
	writeField(&b, "due", o.DueDate)
	writeField(&b, "created", o.CreatedAt)

	items := make([]string, len(o.LineItems))
	for i, li := range o.LineItems {
		items[i] = fmt.Sprintf("%s\x1f%s\x1f%d", li.PartNumber, li.Description, li.Quantity)
	}
	sort.Strings(items)
	writeField(&b, "items", strings.Join(items, "\x1e"))

	shipments := make([]string, len(o.Shipments))
	for i, sh := range o.Shipments {
		shipments[i] = fmt.Sprintf("%s\x1f%s\x1f%s\x1f%s", sh.Carrier, sh.TrackingRef, sh.Status, sh.ShippedAt)
	}
	sort.Strings(shipments)
	writeField(&b, "shipments", strings.Join(shipments, "\x1e"))

	tags := append([]string(nil), o.Tags...)
	sort.Strings(tags)
	writeField(&b, "tags", strings.Join(tags, "\x1e"))

	hash := sha256.Sum256([]byte(b.String()))
	return Fingerprint(hex.EncodeToString(hash[:]))
}

// writeField appends a length-prefixed key/value pair so that adjacent fields
// cannot collide (e.g. "ab"+"c" vs "a"+"bc").
func writeField(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s=%d:%s\x00", key, len(value), value)
}

// VectorID returns a stable vector document ID for the given job number.
// Same identity always yields the same ID, making upsert idempotent.
func VectorID(jobNumber string) string {
	hash := sha256.Sum256([]byte(jobNumber))
	return vectorIDPrefix + hex.EncodeToString(hash[:])
}
