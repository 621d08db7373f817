package auditlog

import (
	"strings"
)

func buildWhereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func clampLimitOffset(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func clampStreamLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return min(limit, 1000)
}
