package models

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Cursor selects the page of jobs requested from the list endpoint.
type Cursor struct {
	Current  int
	PageSize int
}

// Pagination is the cursor plus the server-reported row count and display flags.
type Pagination struct {
	Current                    int   `json:"current"`
	PageSize                   int   `json:"page_size"`
	Total                      int64 `json:"total"`
	Simple                     bool  `json:"simple"`
	SizeCanChange              bool  `json:"size_can_change"`
	PageSizeChangeResetCurrent bool  `json:"page_size_change_reset_current"`
}

func DefaultPagination() Pagination {
	return Pagination{
		Current:                    DefaultPage,
		PageSize:                   DefaultPageSize,
		Simple:                     true,
		SizeCanChange:              false,
		PageSizeChangeResetCurrent: true,
	}
}

func (p Pagination) Cursor() Cursor {
	return Cursor{Current: p.Current, PageSize: p.PageSize}
}

// PageCount is the number of pages needed for Total rows, at least one.
func (p Pagination) PageCount() int {
	if p.PageSize <= 0 || p.Total <= 0 {
		return 1
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// Resolve returns the cursor a pagination change commits to. A page size
// change resets the page to 1 when PageSizeChangeResetCurrent is set.
func (p Pagination) Resolve(current, pageSize int) Cursor {
	if pageSize != p.PageSize && p.PageSizeChangeResetCurrent {
		current = DefaultPage
	}
	return Cursor{Current: current, PageSize: pageSize}
}
