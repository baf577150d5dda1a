package utils

func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// TruncateSQL shortens a statement for log output.
func TruncateSQL(sql string) string {
	const max = 200
	if len(sql) <= max {
		return sql
	}
	return sql[:max] + "..."
}

func StringPtr(s string) *string {
	return &s
}

// NilIfEmpty returns nil for an empty string.
func NilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
