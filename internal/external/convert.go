package external

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeValue converts driver values into JSON-friendly ones.
func normalizeValue(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(v).String()
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

func asString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func asOptionalString(val any) *string {
	s := asString(val)
	if val == nil {
		return nil
	}
	return &s
}

// asComment treats empty comments as absent.
func asComment(val any) *string {
	s := strings.TrimSpace(asString(val))
	if s == "" {
		return nil
	}
	return &s
}

func asBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int32:
		return v != 0
	case int:
		return v != 0
	case string, []byte:
		switch strings.ToUpper(asString(v)) {
		case "1", "YES", "TRUE", "T", "Y":
			return true
		}
	}
	return false
}

func asInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return math.MaxInt64, true
		}
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	case string, []byte:
		s := strings.TrimSpace(asString(v))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// asRowEstimate returns nil for unknown or non-positive catalog estimates.
func asRowEstimate(val any) *int64 {
	n, ok := asInt64(val)
	if !ok || n <= 0 {
		return nil
	}
	return &n
}
