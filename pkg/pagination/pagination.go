package pagination

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Limits holds the default page size and the ceiling a requested limit is
// clamped to.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits is used when no limits are configured.
var DefaultLimits = Limits{Default: DefaultLimit, Max: MaxLimit}

// Page is a (limit, offset) window over a result set.
type Page struct {
	Limit  int
	Offset int
}

// Normalize fills in the default limit, clamps the limit to the ceiling and
// clamps a negative offset to zero. Out-of-range values are never an error.
func (l Limits) Normalize(p Page) Page {
	def, max := l.Default, l.Max
	if max <= 0 {
		max = MaxLimit
	}
	if def <= 0 || def > max {
		def = min(DefaultLimit, max)
	}
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Normalize applies DefaultLimits.
func (p Page) Normalize() Page { return DefaultLimits.Normalize(p) }

// HasNext returns true if there are more results after the current page.
func (p Page) HasNext(total int64) bool {
	return int64(p.Offset+p.Limit) < total
}

// HasPrevious returns true if there are results before the current page.
func (p Page) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Page) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Page) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Result is one page of items together with the total match count.
type Result[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// NewResult wraps items fetched for page p out of total matches.
func NewResult[T any](items []T, total int64, p Page) *Result[T] {
	if items == nil {
		items = []T{}
	}
	return &Result[T]{
		Items:   items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}
