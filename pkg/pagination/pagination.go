package pagination

import "strconv"

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 50
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 100
)

// Params holds page/limit pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the pagination state returned alongside list responses.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// FromQuery parses page/limit query values, falling back to defaults on
// missing or malformed input.
func FromQuery(pageValue, limitValue string) Params {
	page, _ := strconv.Atoi(pageValue)
	limit, _ := strconv.Atoi(limitValue)
	return Normalize(Params{Page: page, Limit: limit})
}

// Normalize enforces the configured default and maximum limits and clamps the
// page to a minimum of 1.
func Normalize(p Params) Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	p.Limit = NormalizeLimit(p.Limit)
	return p
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return (page - 1) * NormalizeLimit(p.Limit)
}

// NewMeta assembles the response metadata for a total row count.
func NewMeta(p Params, total int64) Meta {
	p = Normalize(p)
	pages := int(total) / p.Limit
	if int(total)%p.Limit != 0 {
		pages++
	}
	return Meta{
		Page:  p.Page,
		Limit: p.Limit,
		Total: total,
		Pages: pages,
	}
}
