package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExternalID is the source system's identifier for a catalog item.
// The source may serve it as a JSON number or a JSON string; it is always
// compared as a string.
type ExternalID string

// UnmarshalJSON accepts both numeric and string identifiers
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("external id must be a number or string: %w", err)
	}
	*id = ExternalID(n.String())
	return nil
}

// String returns the identifier as stored in destination metadata
func (id ExternalID) String() string {
	return string(id)
}

// SourceReview is a review embedded in a source catalog item. Only its
// presence is used (for reviews_count).
type SourceReview struct {
	Rating       float64 `json:"rating"`
	Comment      string  `json:"comment,omitempty"`
	ReviewerName string  `json:"reviewerName,omitempty"`
}

// SourceRecord represents one item of the external product catalog
type SourceRecord struct {
	ExternalID  ExternalID     `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Price       float64        `json:"price"`
	Category    string         `json:"category,omitempty"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
	Images      []string       `json:"images,omitempty"`
	Rating      float64        `json:"rating,omitempty"`
	Brand       string         `json:"brand,omitempty"`
	Reviews     []SourceReview `json:"reviews,omitempty"`
}

// SourcePage is one page of the paginated source API.
// Total and Limit are nil when the source omits them.
type SourcePage struct {
	Products []SourceRecord `json:"products"`
	Total    *int           `json:"total,omitempty"`
	Skip     int            `json:"skip"`
	Limit    *int           `json:"limit,omitempty"`

	// Skipped counts records on the page that could not be decoded
	Skipped int `json:"-"`
}

// CategoryRecord is one entry of the source category taxonomy
type CategoryRecord struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ProductMetadata carries traceability back to the source item
type ProductMetadata struct {
	ExternalID       string `json:"external_id"`
	ExternalCategory string `json:"external_category,omitempty"`
	ExternalRating   string `json:"external_rating"`
	ReviewsCount     int    `json:"reviews_count"`
}

// ProductOption is a product option with its allowed values
type ProductOption struct {
	Title  string   `json:"title"`
	Values []string `json:"values"`
}

// Price is an amount in minor currency units
type Price struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// ProductVariant references option values by option title
type ProductVariant struct {
	Title   string            `json:"title"`
	Options map[string]string `json:"options"`
	Prices  []Price           `json:"prices"`
}

// ProductImage is an image URL attached to a product
type ProductImage struct {
	URL string `json:"url"`
}

// Product is the destination-shaped representation of a source item.
// ID is empty for creates and set to the matched entity's id for updates.
type Product struct {
	ID          string           `json:"id,omitempty"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Handle      string           `json:"handle"`
	Status      string           `json:"status"`
	Metadata    ProductMetadata  `json:"metadata"`
	Options     []ProductOption  `json:"options"`
	Variants    []ProductVariant `json:"variants"`
	Images      []ProductImage   `json:"images"`
}

// ExistingProduct is the snapshot of a persisted product used for matching
type ExistingProduct struct {
	ID         string `json:"id"`
	Handle     string `json:"handle"`
	ExternalID string `json:"external_id,omitempty"`
}

// UpsertBatch is the reconciled write set for one batch
type UpsertBatch struct {
	Create []Product `json:"create,omitempty"`
	Update []Product `json:"update,omitempty"`

	// Rejected items are withheld from the write and never sent to the store
	Rejected []RejectedProduct `json:"-"`
}

// RejectedProduct is a batch item that cannot be written without breaking
// the rest of its batch
type RejectedProduct struct {
	Product Product
	Reason  string
}

// Len returns the number of products in the batch
func (b *UpsertBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Create) + len(b.Update)
}

// UpsertResult reports what a store wrote for one batch
type UpsertResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// CategoryMetadata links a destination category back to its source
type CategoryMetadata struct {
	URL        string `json:"url,omitempty"`
	SyncedFrom string `json:"synced_from,omitempty"`
}

// NewCategory is a staged category creation request
type NewCategory struct {
	Name     string           `json:"name"`
	Handle   string           `json:"handle"`
	Metadata CategoryMetadata `json:"metadata"`
}

// Category is a persisted destination category
type Category struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Handle   string           `json:"handle"`
	Metadata CategoryMetadata `json:"metadata"`
}

// ProductCategories is a product's source category and its current links
type ProductCategories struct {
	ProductID        string   `json:"product_id"`
	ExternalID       string   `json:"external_id"`
	ExternalCategory string   `json:"external_category"`
	CategoryIDs      []string `json:"category_ids"`
}

// Category link outcomes, one per product
const (
	LinkAlreadyLinked   = "already_linked"
	LinkDryRunWouldLink = "dry_run_would_link"
	LinkLinked          = "linked"
	LinkFailed          = "link_failed"
	LinkCategoryMissing = "category_missing"
)

// CategoryLink is one entry of a category link report
type CategoryLink struct {
	ExternalID string `json:"external_id"`
	ProductID  string `json:"product_id"`
	Category   string `json:"category"`
	CategoryID string `json:"category_id,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Audit actions recorded per synced product
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// AuditRecord is one row of the sync audit export
type AuditRecord struct {
	ExternalID string
	Handle     string
	Title      string
	Status     string
	Action     string
}

// RawProduct is a loosely typed product row submitted for manual import
type RawProduct map[string]any

// ImportResult reports the outcome of a manual import
type ImportResult struct {
	Created  int  `json:"created"`
	Updated  int  `json:"updated"`
	Rejected int  `json:"rejected,omitempty"`
	DryRun   bool `json:"dry_run,omitempty"`
}
