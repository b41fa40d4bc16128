package hydrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

var errEmptyJSON = errors.New("empty JSON value")

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case [16]byte:
		return uuid.UUID(t).String(), nil
	case uuid.UUID:
		return t.String(), nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return t.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t), nil
	}
	return "", storeerr.InvalidFormat("string", "cannot convert %T", v)
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, storeerr.InvalidFormat("integer", "%d overflows int64", t)
		}
		return int64(t), nil
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return parseInt(t)
	case []byte:
		return parseInt(string(t))
	}
	return 0, storeerr.InvalidFormat("integer", "cannot convert %T", v)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, storeerr.InvalidFormat("integer", "%v is not integral", f)
	}
	return int64(f), nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, storeerr.InvalidFormat("integer", "%q", s)
	}
	return n, nil
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return parseBool(t)
	case []byte:
		return parseBool(string(t))
	}
	n, err := toInt(v)
	if err != nil {
		return false, storeerr.InvalidFormat("boolean", "cannot convert %T", v)
	}
	return n != 0, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no", "":
		return false, nil
	}
	return false, storeerr.InvalidFormat("boolean", "%q", s)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}, storeerr.InvalidFormat("date", "cannot convert %T", v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, storeerr.InvalidFormat("date", "%q matches no known layout", s)
}

func toUUID(v any) (uuid.UUID, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case [16]byte:
		return uuid.UUID(t), nil
	case []byte:
		if len(t) == 16 {
			return uuid.FromBytes(t)
		}
		return parseUUID(string(t))
	case string:
		return parseUUID(t)
	case fmt.Stringer:
		return parseUUID(t.String())
	}
	return uuid.Nil, storeerr.InvalidFormat("uuid", "cannot convert %T", v)
}

func parseUUID(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, storeerr.InvalidFormat("uuid", "%q", s)
	}
	return u, nil
}

// decodeJSON accepts JSON text as string or bytes, or a value the driver
// already decoded (pgx decodes json/jsonb into maps and slices).
func decodeJSON(v any, dst any) error {
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	case []byte:
		data = t
	case json.RawMessage:
		data = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		data = b
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errEmptyJSON
	}
	return json.Unmarshal(data, dst)
}
