package registry

import (
	"fmt"
	"time"
)

// timeLayouts are the textual forms drivers hand back for timestamp columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// flexTime scans a timestamp delivered as time.Time, text or bytes. NULL
// leaves the zero time.
type flexTime struct{ t *time.Time }

func (f flexTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f.t = time.Time{}
		return nil
	case time.Time:
		*f.t = v.UTC()
		return nil
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("registry: cannot scan %T into a timestamp", src)
	}
}

func (f flexTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("registry: unrecognized timestamp %q", s)
}
