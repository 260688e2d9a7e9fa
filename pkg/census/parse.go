package census

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Projection is one normalized population projection row.
// Race and Sex carry display labels, not raw API codes.
type Projection struct {
	Year     int
	Race     string
	Sex      string
	Age      int
	TotalPop int
}

// Table is a decoded Census API response: a header row naming the columns
// and the remaining data rows, all values as strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// ParseTable parses the Census array-of-arrays JSON payload.
// The first element is the header row; the remainder are data rows.
func ParseTable(data []byte) (*Table, error) {
	var raw [][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal census response: %w", err)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("census response contains no rows")
	}

	return &Table{
		Header: raw[0],
		Rows:   raw[1:],
	}, nil
}

// DecodeProjections zip-maps each data row against the header and builds
// normalized records. POP, YEAR and AGE must be integers; RACE and SEX codes
// are translated to labels, with unrecognized codes passing through.
func (t *Table) DecodeProjections() ([]Projection, error) {
	idx := make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		idx[name] = i
	}

	for _, col := range []string{"POP", "YEAR", "RACE", "SEX", "AGE"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("census response missing column %q", col)
		}
	}

	projections := make([]Projection, 0, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return nil, fmt.Errorf("row %d has %d values, header has %d columns",
				i, len(row), len(t.Header))
		}

		year, err := strconv.Atoi(row[idx["YEAR"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse YEAR %q: %w", i, row[idx["YEAR"]], err)
		}
		age, err := strconv.Atoi(row[idx["AGE"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse AGE %q: %w", i, row[idx["AGE"]], err)
		}
		pop, err := strconv.Atoi(row[idx["POP"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse POP %q: %w", i, row[idx["POP"]], err)
		}

		projections = append(projections, Projection{
			Year:     year,
			Race:     RaceLabel(row[idx["RACE"]]),
			Sex:      SexLabel(row[idx["SEX"]]),
			Age:      age,
			TotalPop: pop,
		})
	}

	return projections, nil
}
