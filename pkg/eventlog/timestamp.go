package eventlog

import (
	"strconv"
	"time"

	"github.com/logflow/ptalign/pkg/errors"
)

// Common timestamp layouts ordered by likelihood
var commonLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00", // ISO 8601 with millis
	"2006-01-02T15:04:05Z07:00",     // ISO 8601
	"2006-01-02T15:04:05",           // ISO 8601 local
	"2006-01-02 15:04:05.000",       // Space separator with millis
	"2006-01-02 15:04:05",           // Space separator
	"2006-01-02",                    // Date only
	"02/01/2006 15:04:05",           // DD/MM/YYYY
	"2006/01/02 15:04:05",           // YYYY/MM/DD
	time.RFC3339Nano,
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp parses a timestamp into nanoseconds since epoch. ISO 8601
// is decoded directly; numeric values are read as Excel serial dates.
func ParseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, errInvalidTimestamp(s)
	}

	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		if ns, ok := parseISO8601(s); ok {
			return ns, nil
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		days := int64(serial)
		t := excelEpoch.AddDate(0, 0, int(days))
		if frac := serial - float64(days); frac > 0 {
			t = t.Add(time.Duration(frac * 24 * float64(time.Hour)))
		}
		return t.UnixNano(), nil
	}

	for _, layout := range commonLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	return 0, errInvalidTimestamp(s)
}

func errInvalidTimestamp(s string) error {
	return errors.New(errors.CodeInvalidFormat, "invalid timestamp").WithContext("value", s)
}

// parseISO8601 decodes YYYY-MM-DD[(T| )hh:mm:ss[.frac]][Z|±hh[:]mm] by byte
// arithmetic.
func parseISO8601(s string) (int64, bool) {
	year, ok1 := digits(s[0:4])
	month, ok2 := digits(s[5:7])
	day, ok3 := digits(s[8:10])
	if !ok1 || !ok2 || !ok3 || month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, false
	}

	var hour, minute, second, nsec int
	loc := time.UTC
	if len(s) > 10 {
		if (s[10] != 'T' && s[10] != ' ') || len(s) < 19 {
			return 0, false
		}
		var ok4, ok5, ok6 bool
		hour, ok4 = digits(s[11:13])
		minute, ok5 = digits(s[14:16])
		second, ok6 = digits(s[17:19])
		if !ok4 || !ok5 || !ok6 {
			return 0, false
		}

		i := 19
		if i < len(s) && s[i] == '.' {
			i++
			scale := 100000000
			for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
				nsec += int(s[i]-'0') * scale
				scale /= 10
			}
		}

		if i < len(s) {
			switch s[i] {
			case 'Z':
			case '+', '-':
				rest := s[i+1:]
				if len(rest) < 4 {
					return 0, false
				}
				oh, ok := digits(rest[0:2])
				if !ok {
					return 0, false
				}
				mm := rest[2:]
				if mm[0] == ':' {
					mm = mm[1:]
				}
				if len(mm) < 2 {
					return 0, false
				}
				om, ok := digits(mm[0:2])
				if !ok {
					return 0, false
				}
				offset := oh*3600 + om*60
				if s[i] == '-' {
					offset = -offset
				}
				loc = time.FixedZone("", offset)
			default:
				return 0, false
			}
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc)
	return t.UnixNano(), true
}

func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
