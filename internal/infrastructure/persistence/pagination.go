package persistence

import "gorm.io/gorm"

// maxPageSize bounds list queries coming from the HTTP API and CLI
const maxPageSize = 500

// paginate applies offset pagination when both page and pageSize are set
func paginate(query *gorm.DB, page, pageSize int) *gorm.DB {
	if page <= 0 || pageSize <= 0 {
		return query
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return query.Offset((page - 1) * pageSize).Limit(pageSize)
}
