package request

import (
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
)

// Paging limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Request is a validated search query.
type Request struct {
	filters  filter.Set
	page     int
	pageSize int
}

// New validates paging parameters. Out-of-range values are rejected, never clamped.
func New(filters filter.Set, page, pageSize int) (Request, error) {
	if page <= 0 {
		return Request{}, domain.NewValidationError("page", "must be >= 1, got %d", page)
	}
	if pageSize <= 0 {
		return Request{}, domain.NewValidationError("page_size", "must be >= 1, got %d", pageSize)
	}
	if pageSize > MaxPageSize {
		return Request{}, domain.NewValidationError("page_size", "must be <= %d, got %d", MaxPageSize, pageSize)
	}
	return Request{filters: filters, page: page, pageSize: pageSize}, nil
}

// Filters returns the predicate set, including any free text.
func (r *Request) Filters() filter.Set { return r.filters }

// Query returns the free text.
func (r *Request) Query() string { return r.filters.Query() }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// PageSize returns the number of items per page.
func (r *Request) PageSize() int { return r.pageSize }

// Offset returns the index of the first item on the page.
func (r *Request) Offset() int { return (r.page - 1) * r.pageSize }
