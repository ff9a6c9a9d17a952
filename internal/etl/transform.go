package etl

import (
	"context"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aircover/claimpipe/internal/stageproc"
	"github.com/aircover/claimpipe/internal/tables"
)

var (
	airlineCodePattern = regexp.MustCompile(`^[A-Z]{2}$|^[A-Z]{3}$`)
	passengerIDPattern = regexp.MustCompile(`^[A-Z0-9]{6,15}$`)

	dateLayouts = []string{
		"2006-01-02",
		"02/01/2006",
		"01/02/2006",
		"2006/01/02",
		"02-01-2006",
	}

	// Rates are relative to USD.
	currencyRates = map[string]float64{
		"USD": 1.0,
		"EUR": 1.08,
		"GBP": 1.27,
		"JPY": 0.0068,
		"AUD": 0.66,
		"CAD": 0.73,
	}
)

// BuiltinTransform is the in-process transform stage used when no external
// transform command is configured. It standardizes airline, passenger and
// booking fields, normalizes date columns and dedups by the table's natural
// key, then writes the load-ready CSV next to the input.
type BuiltinTransform struct {
	router *tables.Router
}

// NewBuiltinTransform builds the fallback transform stage.
func NewBuiltinTransform(router *tables.Router) *BuiltinTransform {
	return &BuiltinTransform{router: router}
}

// Run implements stageproc.Processor.
func (t *BuiltinTransform) Run(ctx context.Context, in stageproc.Input, logf func(string)) (string, error) {
	payload, err := os.ReadFile(in.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read transform input: %w", err)
	}

	_, rows, err := parseCSV(payload)
	if err != nil {
		return "", fmt.Errorf("failed to parse transform input: %w", err)
	}

	cfg := t.router.Resolve(in.Table)
	transformed := transformRows(rows)

	key := effectiveKey(transformed, cfg.NaturalKey)
	kept, quarantined := quarantineRows(transformed, key)
	if quarantined > 0 {
		logf(fmt.Sprintf("[transform] quarantined %d rows missing %s", quarantined, key))
	}

	deduped := dedupRows(kept, key)
	if dropped := len(kept) - len(deduped); dropped > 0 {
		logf(fmt.Sprintf("[transform] dropped %d duplicate rows", dropped))
	}

	out := transformOutputPath(in.Path)
	if err := writeCSV(out, deduped); err != nil {
		return "", err
	}

	logf(fmt.Sprintf("[transform] wrote %d rows", len(deduped)))
	logf("[transform] exit code 0")
	return out, nil
}

func transformOutputPath(input string) string {
	dir := filepath.Dir(input)
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+".transform.csv")
}

func transformRows(rows []map[string]string) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		next := make(map[string]string, len(row))
		for k, v := range row {
			next[k] = strings.TrimSpace(v)
		}

		transformAirlineFields(next)
		transformPassengerFields(next)
		transformBookingFields(next)
		normalizeDateFields(next)

		out = append(out, next)
	}
	return out
}

func transformAirlineFields(row map[string]string) {
	if name := row["airline_name"]; name != "" {
		row["airline_name"] = titleWords(name)
	}
	if code := row["airline_code"]; code != "" {
		upper := strings.ToUpper(strings.TrimSpace(code))
		if !airlineCodePattern.MatchString(upper) {
			row["airline_code_invalid"] = "true"
		}
		row["airline_code"] = upper
	}
	if row["airline_code"] != "" && row["airline_name"] != "" {
		row["airline_hash"] = hashAirline(row["airline_code"], row["airline_name"])
	}
}

func transformPassengerFields(row map[string]string) {
	if name := row["name"]; name != "" {
		standardized := titleWords(name)
		row["name"] = standardized
		first, last := splitName(standardized)
		if first != "" {
			row["first_name"] = first
		}
		if last != "" {
			row["last_name"] = last
		}
	}

	maskPII(row)

	if id := row["passenger_id"]; id != "" {
		valid := passengerIDPattern.MatchString(strings.ToUpper(strings.TrimSpace(id)))
		row["passenger_id_valid"] = strconv.FormatBool(valid)
	}
}

func transformBookingFields(row map[string]string) {
	_, hasFare := row["base_fare"]
	_, hasTaxes := row["taxes"]
	_, hasFees := row["fees"]
	_, hasTotal := row["total"]
	if !hasFare && !hasTaxes && !hasFees && !hasTotal {
		return
	}

	base := parseAmount(row["base_fare"])
	taxes := parseAmount(row["taxes"])
	fees := parseAmount(row["fees"])
	total := parseAmount(row["total"])

	calculated := base + taxes + fees
	if math.Abs(calculated-total) <= 0.01 {
		row["booking_amount_valid"] = "true"
	} else {
		row["booking_amount_valid"] = "false"
		row["booking_amount_msg"] = fmt.Sprintf("Total mismatch: calculated %g, received %g", calculated, total)
	}

	if currency := strings.ToUpper(row["currency"]); currency != "" {
		if usd, ok := convertCurrency(total, currency, "USD"); ok {
			row["amount_usd"] = fmt.Sprintf("%.2f", usd)
		}
	}
}

func normalizeDateFields(row map[string]string) {
	for key, value := range row {
		if value == "" || !strings.Contains(strings.ToLower(key), "date") {
			continue
		}
		if ts, ok := parseDate(value); ok {
			row[key] = ts.Format("2006-01-02T15:04:05")
		}
	}
}

// effectiveKey resolves the dedup/quarantine key for a batch: the configured
// natural key when present, otherwise the first matching candidate column.
// Empty when the batch has no usable key.
func effectiveKey(rows []map[string]string, naturalKey string) string {
	if len(rows) == 0 {
		return ""
	}
	// Empty cells are omitted from row maps, so column presence has to be
	// checked across the batch, not just the first row.
	if columnPresent(rows, naturalKey) {
		return naturalKey
	}
	for _, candidate := range []string{"id", "booking_reference", "passenger_id", "flight_key"} {
		if columnPresent(rows, candidate) {
			return candidate
		}
	}
	return ""
}

func columnPresent(rows []map[string]string, col string) bool {
	for _, row := range rows {
		if _, ok := row[col]; ok {
			return true
		}
	}
	return false
}

// quarantineRows drops rows missing the key value. They never reach the
// warehouse; the caller logs the count.
func quarantineRows(rows []map[string]string, key string) ([]map[string]string, int) {
	if key == "" {
		return rows, 0
	}
	kept := make([]map[string]string, 0, len(rows))
	quarantined := 0
	for _, row := range rows {
		if row[key] == "" {
			quarantined++
			continue
		}
		kept = append(kept, row)
	}
	return kept, quarantined
}

func dedupRows(rows []map[string]string, key string) []map[string]string {
	if len(rows) == 0 || key == "" {
		return rows
	}

	seen := map[string]struct{}{}
	deduped := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		value := row[key]
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		deduped = append(deduped, row)
	}
	return deduped
}

func writeCSV(path string, rows []map[string]string) error {
	fieldSet := map[string]struct{}{}
	for _, row := range rows {
		for col := range row {
			fieldSet[col] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for col := range fieldSet {
		fields = append(fields, col)
	}
	sort.Strings(fields)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create transform output: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		return fmt.Errorf("failed to write transform header: %w", err)
	}
	record := make([]string, len(fields))
	for _, row := range rows {
		for i, col := range fields {
			record[i] = row[col]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write transform row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush transform output: %w", err)
	}
	return nil
}

// titleWords trims, collapses whitespace and title-cases each word.
func titleWords(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		if len(runes) > 0 {
			runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func hashAirline(code, name string) string {
	combined := strings.ToUpper(strings.TrimSpace(code)) + titleWords(name)
	sum := md5.Sum([]byte(combined))
	return hex.EncodeToString(sum[:])
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// maskPII keeps ids and name prefixes, masks email, phone and address.
func maskPII(row map[string]string) {
	if email := row["email"]; email != "" {
		parts := strings.SplitN(email, "@", 2)
		if len(parts) == 2 && len(parts[0]) >= 2 {
			row["email"] = parts[0][:2] + "***@" + parts[1]
		}
	}
	if phone := row["phone"]; len(phone) >= 4 {
		row["phone"] = "***" + phone[len(phone)-4:]
	}
	if address := row["address"]; len(address) > 10 {
		row["address"] = address[:10] + "***"
	}
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func convertCurrency(amount float64, from, to string) (float64, bool) {
	fromRate, okFrom := currencyRates[from]
	toRate, okTo := currencyRates[to]
	if !okFrom || !okTo {
		return 0, false
	}
	return amount * fromRate / toRate, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
