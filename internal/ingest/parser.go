// Package ingest normalizes raw voucher material (mail messages and
// spreadsheet batches) into voucher records for the store. Parsing never
// fails the sweep: a malformed item becomes a counted parse failure.
package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Leading forwarding/reply markers, e.g. "Fw: ", "Fwd: ", "Re: ".
	forwardPrefixRe = regexp.MustCompile(`(?i)^(?:Fw|Fwd|Re)\s*:\s*`)

	// Currency amount token, e.g. "₪200.00" or "₪ 150".
	amountRe = regexp.MustCompile(`₪\s*(\d+(?:\.\d+)?)`)

	// A line consisting solely of the 15-25 digit voucher code.
	codeLineRe = regexp.MustCompile(`(?m)^\s*(\d{15,25})\s*$`)

	// First 15-25 digit run anywhere in a string (page title / image alt).
	codeRe = regexp.MustCompile(`\d{15,25}`)

	// Currency symbols, thousand separators and whitespace in amount cells.
	amountNoiseRe = regexp.MustCompile(`[₪,\s]`)
)

// ParseSubject extracts (amount, store) from a voucher mail subject.
//
// Format: "שובר על סך ₪200.00 - שופרסל שלי נווה הדרים - ראשון לציון",
// possibly prefixed with "Fw: " / "Fwd: ". The store label is the second
// " - "-delimited segment. Missing fields come back as zero values.
func ParseSubject(subject string) (amount int, store string) {
	subject = strings.TrimSpace(forwardPrefixRe.ReplaceAllString(subject, ""))

	if m := amountRe.FindStringSubmatch(subject); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			amount = int(f)
		}
	}

	parts := strings.Split(subject, " - ")
	if len(parts) >= 2 {
		store = strings.TrimSpace(parts[1])
	}

	return amount, store
}

// ParseBody extracts the voucher code from a mail body: a standalone
// 15-25 digit number on its own line, e.g. 91098085941400300563.
// Returns "" when no such line exists.
func ParseBody(body string) string {
	if m := codeLineRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// ExtractCode finds the first 15-25 digit run in the given texts, in order.
// Used on fetched page titles and image alt texts (first match wins).
func ExtractCode(texts ...string) string {
	for _, text := range texts {
		if code := codeRe.FindString(text); code != "" {
			return code
		}
	}
	return ""
}

// CleanAmount parses an amount cell that may carry currency noise, such as
// "₪200", "1,250" or "200.00".
func CleanAmount(raw string) (int, error) {
	cleaned := amountNoiseRe.ReplaceAllString(raw, "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount %q: %w", raw, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("non-positive amount %q", raw)
	}
	return int(f), nil
}
