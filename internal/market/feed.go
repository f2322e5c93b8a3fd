package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// LoadCSV reads bars from a CSV file with columns
// time,open,high,low,close,volume and an optional seventh session column.
// Timestamps are RFC3339 or "2006-01-02 15:04:05" interpreted in loc.
// When the session column is absent the session key is derived from the
// timestamp's date in loc. Rows are returned in file order; ordering and
// anomaly checks are the engine's job.
func LoadCSV(path string, loc *time.Location) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var bars []Bar
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line+1, err)
		}
		line++
		if line == 1 && !looksNumeric(rec) {
			continue // header row
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("%s line %d: want at least 6 columns, got %d", path, line, len(rec))
		}
		ts, err := parseTime(rec[0], loc)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d col %d: %w", path, line, i+2, err)
			}
			vals[i] = v
		}
		b := Bar{
			Time:   ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		}
		if len(rec) >= 7 && rec[6] != "" {
			b.Session = rec[6]
		} else {
			b.Session = SessionKey(ts, loc)
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars", path)
	}
	return bars, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc); err == nil {
		return t, nil
	}
	// epoch seconds, common in exported datasets
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func looksNumeric(rec []string) bool {
	if len(rec) < 2 {
		return false
	}
	_, err := strconv.ParseFloat(rec[1], 64)
	return err == nil
}
