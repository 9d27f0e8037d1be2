package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edukit/assignio-backend/internal/backend"
)

// Row value helpers. The DataSource contract types rows as map[string]any, so
// every typed repository funnels conversions through here. pgx surfaces uuid
// columns as [16]byte and integers as int32/int64 depending on width.

func rowUUID(row backend.Row, col string) (uuid.UUID, error) {
	switch v := row[col].(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("column %q: cannot read %T as uuid", col, row[col])
	}
}

func rowString(row backend.Row, col string) (string, error) {
	if v, ok := row[col].(string); ok {
		return v, nil
	}
	return "", fmt.Errorf("column %q: cannot read %T as string", col, row[col])
}

func rowInt(row backend.Row, col string) (int, error) {
	switch v := row[col].(type) {
	case int:
		return v, nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("column %q: cannot read %T as int", col, row[col])
	}
}

func rowBool(row backend.Row, col string) (bool, error) {
	if v, ok := row[col].(bool); ok {
		return v, nil
	}
	return false, fmt.Errorf("column %q: cannot read %T as bool", col, row[col])
}

func rowTime(row backend.Row, col string) (time.Time, error) {
	if v, ok := row[col].(time.Time); ok {
		return v, nil
	}
	return time.Time{}, fmt.Errorf("column %q: cannot read %T as time", col, row[col])
}

// rowTimePtr returns nil for SQL NULL.
func rowTimePtr(row backend.Row, col string) (*time.Time, error) {
	if row[col] == nil {
		return nil, nil
	}
	t, err := rowTime(row, col)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// rowFloatPtr returns nil for SQL NULL.
func rowFloatPtr(row backend.Row, col string) (*float64, error) {
	switch v := row[col].(type) {
	case nil:
		return nil, nil
	case float64:
		return &v, nil
	case float32:
		f := float64(v)
		return &f, nil
	default:
		return nil, fmt.Errorf("column %q: cannot read %T as float", col, row[col])
	}
}
