package databases

import (
	"math"

	"go.mongodb.org/mongo-driver/mongo/options"
)

// Pagination is a 0-based page request
type Pagination struct {
	Page int
	Size int
}

// NewPagination clamps the request: negative pages become 0, a non-positive size becomes
// defaultSize, sizes above maxSize are capped and pages are capped so the offset fits an int.
func NewPagination(page, size, defaultSize, maxSize int) Pagination {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	if page > math.MaxInt/size {
		page = math.MaxInt / size
	}
	return Pagination{Page: page, Size: size}
}

// Offset is the number of rows to skip. It saturates instead of wrapping negative.
func (p Pagination) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt / p.Size * p.Size
	}
	return p.Page * p.Size
}

func (p Pagination) getPaginatedOpts() *options.FindOptions {
	l := int64(p.Size)
	skip := int64(p.Offset())
	return &options.FindOptions{Limit: &l, Skip: &skip}
}
