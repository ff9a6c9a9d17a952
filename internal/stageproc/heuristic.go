package stageproc

import "strings"

// cleanMarkerHeaders are columns only the cleaning stage produces. Seeing one
// means the file already went through cleaning.
var cleanMarkerHeaders = map[string]struct{}{
	"row_hash":           {},
	"quarantine_reason":  {},
	"airline_hash":       {},
	"flight_key":         {},
	"passenger_id_valid": {},
	"amount_usd":         {},
}

// LooksLikeCleaned decides whether an uploaded file may skip the cleaning
// stage and go straight to transform. Best-effort shortcut: a false positive
// passes an uncleaned file on, it does not fail the run here.
func LooksLikeCleaned(force bool, fileName string, headers []string, expectedColumns []string) bool {
	if force {
		return true
	}

	if strings.Contains(strings.ToLower(fileName), "cleaned") {
		return true
	}

	headerSet := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		headerSet[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	for marker := range cleanMarkerHeaders {
		if _, ok := headerSet[marker]; ok {
			return true
		}
	}

	if len(expectedColumns) > 0 {
		for _, col := range expectedColumns {
			if _, ok := headerSet[strings.ToLower(col)]; !ok {
				return false
			}
		}
		return true
	}

	return false
}
