package comment

// DefaultPageSize is the widget's page length.
const DefaultPageSize = 8

// Page is the visible slice of an ordered comment list plus the state
// of the pagination controls.
type Page struct {
	Items        []Comment
	HasPrev      bool
	HasNext      bool
	TotalPages   int
	PageIndex    int
	ShowSort     bool
	ShowControls bool
}

// TotalPages returns ceil(n/pageSize), or 0 for an empty list so no
// pagination controls render.
func TotalPages(n, pageSize int) int {
	if n <= 0 || pageSize <= 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}

// ClampPage clamps a page index into [0, totalPages-1]. Navigating past
// either bound lands on the nearest valid page.
func ClampPage(pageIndex, totalPages int) int {
	if totalPages <= 0 {
		return 0
	}
	if pageIndex < 0 {
		return 0
	}
	if pageIndex >= totalPages {
		return totalPages - 1
	}
	return pageIndex
}

// SelectPage maps an ordered list and a page index to the visible
// slice. Out-of-range indexes clamp rather than fail. Sort controls
// show only for a non-empty list; prev/next controls only when the
// list exceeds one page.
func SelectPage(list []Comment, pageIndex, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	totalPages := TotalPages(len(list), pageSize)
	pageIndex = ClampPage(pageIndex, totalPages)

	start := pageIndex * pageSize
	end := start + pageSize
	if start > len(list) {
		start = len(list)
	}
	if end > len(list) {
		end = len(list)
	}

	return Page{
		Items:        list[start:end],
		HasPrev:      pageIndex > 0,
		HasNext:      pageIndex < totalPages-1,
		TotalPages:   totalPages,
		PageIndex:    pageIndex,
		ShowSort:     len(list) > 0,
		ShowControls: len(list) > pageSize,
	}
}
