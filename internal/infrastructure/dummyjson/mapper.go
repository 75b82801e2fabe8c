package dummyjson

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/catalogsync/backend/internal/domain"
)

const (
	// StatusPublished is the status assigned to every synced product
	StatusPublished = "published"

	// DefaultOptionTitle names the single option/variant every product carries
	DefaultOptionTitle = "Default"

	// DefaultCurrency is used when no currency code is configured
	DefaultCurrency = "usd"
)

// slugSpace is the whitespace class slugs are derived with, including the
// Unicode spaces that must become dashes rather than being stripped
const slugSpace = `\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9` + slugSpace + `-]`)
	slugWhitespace   = regexp.MustCompile(`[` + slugSpace + `]+`)
	slugDashes       = regexp.MustCompile(`-+`)
)

// Slugify derives a URL-safe handle from a title: lower-case, drop
// everything outside [a-z0-9\s-], trim, whitespace runs become a single
// dash, then dash runs collapse to one.
func Slugify(input string) string {
	s := strings.ToLower(input)
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = strings.TrimFunc(s, isSlugSpace)
	s = slugWhitespace.ReplaceAllString(s, "-")
	return slugDashes.ReplaceAllString(s, "-")
}

func isSlugSpace(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\v', r == '\f', r == '\r', r == ' ':
		return true
	case r == 0x00a0, r == 0x1680, r >= 0x2000 && r <= 0x200a:
		return true
	case r == 0x2028, r == 0x2029, r == 0x202f, r == 0x205f, r == 0x3000, r == 0xfeff:
		return true
	}
	return false
}

// MapToProduct converts a source catalog item to the destination product shape
func MapToProduct(record domain.SourceRecord, currency string) domain.Product {
	if currency == "" {
		currency = DefaultCurrency
	}

	return domain.Product{
		Title:       record.Title,
		Description: record.Description,
		Handle:      Slugify(record.Title),
		Status:      StatusPublished,
		Metadata: domain.ProductMetadata{
			ExternalID:       record.ExternalID.String(),
			ExternalCategory: record.Category,
			ExternalRating:   formatRating(record.Rating),
			ReviewsCount:     len(record.Reviews),
		},
		// The destination rejects products without at least one option and variant
		Options: []domain.ProductOption{
			{Title: DefaultOptionTitle, Values: []string{DefaultOptionTitle}},
		},
		Variants: []domain.ProductVariant{
			{
				Title:   DefaultOptionTitle,
				Options: map[string]string{DefaultOptionTitle: DefaultOptionTitle},
				Prices: []domain.Price{
					{Amount: ToMinorUnits(record.Price), CurrencyCode: currency},
				},
			},
		},
		Images: selectImages(record),
	}
}

// ToMinorUnits converts a decimal price to minor currency units
func ToMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

func formatRating(rating float64) string {
	if rating == 0 {
		return "0"
	}
	return strconv.FormatFloat(rating, 'f', -1, 64)
}

// selectImages prefers the image list and falls back to the thumbnail
func selectImages(record domain.SourceRecord) []domain.ProductImage {
	images := make([]domain.ProductImage, 0, len(record.Images))
	for _, src := range record.Images {
		images = append(images, domain.ProductImage{URL: src})
	}
	if len(images) == 0 && record.Thumbnail != "" {
		images = append(images, domain.ProductImage{URL: record.Thumbnail})
	}
	return images
}

// NormalizeRawProduct converts a loosely typed import row into a source
// record so it can go through the same mapping as catalog items. Rows
// missing an id fall back to "id"; titles default to "Untitled".
func NormalizeRawProduct(raw domain.RawProduct) (domain.SourceRecord, error) {
	id := firstString(raw, "external_id", "id")
	if id == "" {
		return domain.SourceRecord{}, fmt.Errorf("%w: product row has no external_id or id", domain.ErrInvalidRequest)
	}

	title := firstString(raw, "title")
	if title == "" {
		title = "Untitled"
	}

	return domain.SourceRecord{
		ExternalID:  domain.ExternalID(id),
		Title:       title,
		Description: firstString(raw, "description"),
		Price:       toFloat(raw["price"]),
		Category:    firstString(raw, "category"),
		Thumbnail:   firstString(raw, "thumbnail"),
		Images:      toStringList(raw["images"]),
		Rating:      toFloat(raw["rating"]),
		Brand:       firstString(raw, "brand"),
	}, nil
}

func firstString(raw domain.RawProduct, keys ...string) string {
	for _, key := range keys {
		if s := toString(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// toStringList accepts either a JSON array or a comma-separated string
func toStringList(v any) []string {
	var out []string
	switch val := v.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	case []any:
		for _, item := range val {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range val {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
