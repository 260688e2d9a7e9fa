package census

import (
	"testing"
)

const wellFormedBody = `[
	["POP","YEAR","RACE","SEX","AGE","us"],
	["1983961","1","1","1","0","1"],
	["386361","1","2","1","0","1"],
	["45762","1","9","2","35","1"]
]`

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(wellFormedBody))
	if err != nil {
		t.Fatalf("ParseTable failed: %v", err)
	}

	if len(table.Header) != 6 {
		t.Errorf("header length = %d, want 6", len(table.Header))
	}
	if table.Header[0] != "POP" {
		t.Errorf("header[0] = %q, want POP", table.Header[0])
	}

	// Record count equals total rows minus the header row.
	if len(table.Rows) != 3 {
		t.Errorf("data rows = %d, want 3", len(table.Rows))
	}
}

func TestParseTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `this is not json`},
		{"wrong shape", `{"not": "an array"}`},
		{"non-string values", `[[1,2],[3,4]]`},
		{"empty array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTable([]byte(tt.body)); err == nil {
				t.Error("ParseTable should fail")
			}
		})
	}
}

func TestDecodeProjections(t *testing.T) {
	table, err := ParseTable([]byte(wellFormedBody))
	if err != nil {
		t.Fatalf("ParseTable failed: %v", err)
	}

	projections, err := table.DecodeProjections()
	if err != nil {
		t.Fatalf("DecodeProjections failed: %v", err)
	}

	if len(projections) != 3 {
		t.Fatalf("projection count = %d, want 3", len(projections))
	}

	first := projections[0]
	if first.Year != 1 {
		t.Errorf("Year = %d, want 1", first.Year)
	}
	if first.Race != "White" {
		t.Errorf("Race = %q, want White", first.Race)
	}
	if first.Sex != "Male" {
		t.Errorf("Sex = %q, want Male", first.Sex)
	}
	if first.Age != 0 {
		t.Errorf("Age = %d, want 0", first.Age)
	}
	if first.TotalPop != 1983961 {
		t.Errorf("TotalPop = %d, want 1983961", first.TotalPop)
	}

	// Race code 2 maps to Black.
	if projections[1].Race != "Black" {
		t.Errorf("Race = %q, want Black", projections[1].Race)
	}

	// Unrecognized race code 9 passes through; sex code 2 maps to Female.
	third := projections[2]
	if third.Race != "9" {
		t.Errorf("Race = %q, want literal 9", third.Race)
	}
	if third.Sex != "Female" {
		t.Errorf("Sex = %q, want Female", third.Sex)
	}
}

func TestDecodeProjections_ColumnOrderIndependent(t *testing.T) {
	// The decoder keys off header names, not positions.
	body := `[
		["YEAR","AGE","SEX","RACE","POP"],
		["1","12","2","4","52000"]
	]`
	table, err := ParseTable([]byte(body))
	if err != nil {
		t.Fatalf("ParseTable failed: %v", err)
	}

	projections, err := table.DecodeProjections()
	if err != nil {
		t.Fatalf("DecodeProjections failed: %v", err)
	}

	p := projections[0]
	if p.Year != 1 || p.Age != 12 || p.Sex != "Female" || p.Race != "Asian" || p.TotalPop != 52000 {
		t.Errorf("unexpected projection: %+v", p)
	}
}

func TestDecodeProjections_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing required column",
			body: `[["YEAR","RACE","SEX","AGE"],["1","1","1","0"]]`,
		},
		{
			name: "row arity mismatch",
			body: `[["POP","YEAR","RACE","SEX","AGE"],["100","1","1"]]`,
		},
		{
			name: "non-numeric population",
			body: `[["POP","YEAR","RACE","SEX","AGE"],["lots","1","1","1","0"]]`,
		},
		{
			name: "non-numeric age",
			body: `[["POP","YEAR","RACE","SEX","AGE"],["100","1","1","1","unknown"]]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseTable([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseTable failed: %v", err)
			}
			if _, err := table.DecodeProjections(); err == nil {
				t.Error("DecodeProjections should fail")
			}
		})
	}
}

func TestDecodeProjections_HeaderOnly(t *testing.T) {
	table, err := ParseTable([]byte(`[["POP","YEAR","RACE","SEX","AGE"]]`))
	if err != nil {
		t.Fatalf("ParseTable failed: %v", err)
	}

	projections, err := table.DecodeProjections()
	if err != nil {
		t.Fatalf("DecodeProjections failed: %v", err)
	}
	if len(projections) != 0 {
		t.Errorf("projection count = %d, want 0 for header-only payload", len(projections))
	}
}
