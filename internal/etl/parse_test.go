package etl

import (
	"errors"
	"testing"
)

func TestParseCSVBasic(t *testing.T) {
	payload := []byte("Airline Code,Airline Name\nBA,British Airways\nLH,Lufthansa\n")

	headers, rows, err := parseCSV(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(headers) != 2 || headers[0] != "airline_code" || headers[1] != "airline_name" {
		t.Errorf("unexpected headers: %v", headers)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["airline_code"] != "BA" || rows[1]["airline_name"] != "Lufthansa" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestParseCSVStripsBOM(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("code\nBA\n")...)

	headers, rows, err := parseCSV(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers[0] != "code" {
		t.Errorf("expected BOM stripped from first header, got %q", headers[0])
	}
	if rows[0]["code"] != "BA" {
		t.Errorf("unexpected row: %v", rows[0])
	}
}

func TestParseCSVSkipsEmptyRowsAndCells(t *testing.T) {
	payload := []byte("code,name\n,\nBA,\n\n,Lufthansa\n")

	_, rows, err := parseCSV(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 non-empty rows, got %d", len(rows))
	}
	if _, ok := rows[0]["name"]; ok {
		t.Error("empty cells must be omitted from the row map")
	}
}

func TestParseCSVDeduplicatesHeaders(t *testing.T) {
	payload := []byte("code,code,  \nBA,LH,x\n")

	headers, _, err := parseCSV(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers[0] != "code" || headers[1] != "code_2" {
		t.Errorf("expected deduplicated headers, got %v", headers)
	}
	if headers[2] != "column_3" {
		t.Errorf("expected placeholder name for blank header, got %q", headers[2])
	}
}

func TestParseTableRejectsUnknownFormat(t *testing.T) {
	_, _, err := parseTable("data.txt", []byte("hello"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
