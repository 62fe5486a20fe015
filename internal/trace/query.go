package trace

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Query evaluates a gjson path over JSON-lines records. The path is applied
// to the records as one array, so "#.name" lists every name and
// `#(op=="set")#` selects assignments.
func Query(records []string, path string) (gjson.Result, error) {
	doc := strings.Join(records, "\n")
	for i, rec := range records {
		if !gjson.Valid(rec) {
			return gjson.Result{}, fmt.Errorf("%w: record %d", ErrInvalidRecords, i+1)
		}
	}
	return gjson.Get(doc, ".."+path), nil
}

// Filter returns the records for which cond holds, e.g. `op=="set"` or
// `line>3`.
func Filter(records []string, cond string) ([]string, error) {
	res, err := Query(records, "#("+cond+")#")
	if err != nil {
		return nil, err
	}
	var out []string
	res.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.Raw)
		return true
	})
	return out, nil
}

// Ops returns the op of every record in order.
func Ops(records []string) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, gjson.Get(rec, "op").String())
	}
	return out
}

// Summary counts the records of each op.
func Summary(records []string) map[string]int {
	counts := make(map[string]int)
	gjson.ForEachLine(strings.Join(records, "\n"), func(line gjson.Result) bool {
		counts[line.Get("op").String()]++
		return true
	})
	return counts
}

// ReadFile reads the records of a JSON-lines trace file. Blank lines are
// skipped.
func ReadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var (
		records []string
		bad     int
	)
	gjson.ForEachLine(string(data), func(line gjson.Result) bool {
		if !gjson.Valid(line.Raw) {
			bad = len(records) + 1
			return false
		}
		records = append(records, line.Raw)
		return true
	})
	if bad > 0 {
		return nil, fmt.Errorf("%w: %s record %d", ErrInvalidRecords, path, bad)
	}
	return records, nil
}
