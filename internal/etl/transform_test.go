package etl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aircover/claimpipe/internal/stageproc"
	"github.com/aircover/claimpipe/internal/tables"
)

func TestTransformAirlineFields(t *testing.T) {
	row := map[string]string{
		"airline_code": "ba",
		"airline_name": "  british   AIRWAYS ",
	}
	transformAirlineFields(row)

	if row["airline_name"] != "British Airways" {
		t.Errorf("expected title-cased name, got %q", row["airline_name"])
	}
	if row["airline_code"] != "BA" {
		t.Errorf("expected upper-cased code, got %q", row["airline_code"])
	}
	if _, flagged := row["airline_code_invalid"]; flagged {
		t.Error("valid 2-letter code must not be flagged")
	}
	if row["airline_hash"] == "" {
		t.Error("expected airline hash to be computed")
	}
}

func TestTransformAirlineFieldsFlagsBadCode(t *testing.T) {
	row := map[string]string{"airline_code": "B4DC0DE"}
	transformAirlineFields(row)

	if row["airline_code_invalid"] != "true" {
		t.Errorf("expected invalid code flag, got %q", row["airline_code_invalid"])
	}
}

func TestTransformPassengerFields(t *testing.T) {
	row := map[string]string{
		"name":         "ada  lovelace byron",
		"email":        "ada@example.com",
		"phone":        "07700900123",
		"address":      "12 Analytical Engine Lane, London",
		"passenger_id": "PAX001",
	}
	transformPassengerFields(row)

	if row["first_name"] != "Ada" {
		t.Errorf("expected first name Ada, got %q", row["first_name"])
	}
	if row["last_name"] != "Lovelace Byron" {
		t.Errorf("expected remaining words as last name, got %q", row["last_name"])
	}
	if !strings.HasPrefix(row["email"], "ad***@") {
		t.Errorf("expected masked email, got %q", row["email"])
	}
	if !strings.HasPrefix(row["phone"], "***") || !strings.HasSuffix(row["phone"], "0123") {
		t.Errorf("expected masked phone keeping last 4 digits, got %q", row["phone"])
	}
	if !strings.HasSuffix(row["address"], "***") {
		t.Errorf("expected masked address, got %q", row["address"])
	}
	if row["passenger_id_valid"] != "true" {
		t.Errorf("expected valid passenger id, got %q", row["passenger_id_valid"])
	}
}

func TestTransformBookingFields(t *testing.T) {
	row := map[string]string{
		"base_fare": "100.00",
		"taxes":     "20.00",
		"fees":      "5.00",
		"total":     "125.00",
		"currency":  "EUR",
	}
	transformBookingFields(row)

	if row["booking_amount_valid"] != "true" {
		t.Errorf("expected amounts to reconcile, got %q (%q)", row["booking_amount_valid"], row["booking_amount_msg"])
	}
	if row["amount_usd"] != "135.00" {
		t.Errorf("expected EUR conversion to 135.00, got %q", row["amount_usd"])
	}
}

func TestTransformBookingFieldsMismatch(t *testing.T) {
	row := map[string]string{
		"base_fare": "100.00",
		"taxes":     "20.00",
		"fees":      "5.00",
		"total":     "130.00",
	}
	transformBookingFields(row)

	if row["booking_amount_valid"] != "false" {
		t.Errorf("expected mismatch flag, got %q", row["booking_amount_valid"])
	}
	if row["booking_amount_msg"] == "" {
		t.Error("expected a mismatch message")
	}
}

func TestNormalizeDateFields(t *testing.T) {
	row := map[string]string{
		"booking_date": "15/03/2024",
		"name":         "03/15/2024",
	}
	normalizeDateFields(row)

	if row["booking_date"] != "2024-03-15T00:00:00" {
		t.Errorf("expected normalized date, got %q", row["booking_date"])
	}
	if row["name"] != "03/15/2024" {
		t.Errorf("non-date columns must be untouched, got %q", row["name"])
	}
}

func TestDedupRows(t *testing.T) {
	rows := []map[string]string{
		{"booking_reference": "REF1", "total": "100"},
		{"booking_reference": "REF2", "total": "200"},
		{"booking_reference": "REF1", "total": "300"},
	}

	deduped := dedupRows(rows, "booking_reference")
	if len(deduped) != 2 {
		t.Fatalf("expected 2 rows after dedup, got %d", len(deduped))
	}
	if deduped[0]["total"] != "100" {
		t.Error("dedup must keep the first occurrence")
	}
}

func TestEffectiveKeyFallsBackToCandidate(t *testing.T) {
	rows := []map[string]string{
		{"passenger_id": "PAX001"},
		{"passenger_id": "PAX001"},
	}

	key := effectiveKey(rows, "some_missing_key")
	if key != "passenger_id" {
		t.Fatalf("expected candidate key passenger_id, got %q", key)
	}
	if deduped := dedupRows(rows, key); len(deduped) != 1 {
		t.Errorf("expected candidate key dedup, got %d rows", len(deduped))
	}
}

func TestQuarantineRows(t *testing.T) {
	rows := []map[string]string{
		{"airline_code": "BA", "airline_name": "British Airways"},
		{"airline_name": "No Code Air"},
		{"airline_code": "LH"},
	}

	kept, quarantined := quarantineRows(rows, "airline_code")
	if quarantined != 1 {
		t.Errorf("expected 1 quarantined row, got %d", quarantined)
	}
	if len(kept) != 2 {
		t.Errorf("expected 2 kept rows, got %d", len(kept))
	}

	kept, quarantined = quarantineRows(rows, "")
	if quarantined != 0 || len(kept) != 3 {
		t.Error("no key means nothing is quarantined")
	}
}

func TestBuiltinTransformRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "airlines.csv")
	csv := "airline_code,airline_name\nba,british airways\nba,british airways\nlh,lufthansa\n"
	if err := os.WriteFile(input, []byte(csv), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	transform := NewBuiltinTransform(tables.NewRouter(tables.Defaults()))

	var lines []string
	out, err := transform.Run(context.Background(), stageproc.Input{Table: "airlines", Path: input}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(out, "airlines.transform.csv") {
		t.Errorf("unexpected output path %q", out)
	}

	payload, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	_, rows, err := parseCSV(payload)
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected duplicate BA row dropped, got %d rows", len(rows))
	}
	if rows[0]["airline_name"] != "British Airways" {
		t.Errorf("expected transformed name, got %q", rows[0]["airline_name"])
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "exit code 0") {
		t.Errorf("expected exit code log line, got:\n%s", joined)
	}
}
