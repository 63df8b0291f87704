package listing

import "github.com/maauso/portal-listings/internal/entity"

// Page sizes used by the listing views.
const (
	DashboardPageSize = 12
	ProfilePageSize   = 8
)

// TotalPages returns ceil(n/size); zero items means zero pages.
func TotalPages(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// PageWindow returns items[(page-1)*size : page*size]. Pages past the end
// yield an empty window; they are not clamped.
func PageWindow(items []entity.Entity, page, size int) []entity.Entity {
	if page < 1 || size <= 0 {
		return []entity.Entity{}
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []entity.Entity{}
	}
	end := min(start+size, len(items))
	out := make([]entity.Entity, end-start)
	copy(out, items[start:end])
	return out
}
