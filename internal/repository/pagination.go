package repository

import "strings"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// paginate clamps page and size and returns the SQL offset.
func paginate(page, size int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size, (page - 1) * size
}

// orderBy resolves a requested sort key against an allow-list, defaulting to fallback DESC.
func orderBy(sortBy, sortOrder string, allowed map[string]string, fallback string) (string, string) {
	column, ok := allowed[sortBy]
	if !ok {
		column = fallback
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return column, order
}
