package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiName folds a patient name into something safe for a file name:
// accents are stripped and every other non alphanumeric run becomes "_".
func asciiName(name string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "paciente"
	}
	return b.String()
}

// FileName is reporte_<ascii-name>_<YYYY-MM-DD>.xlsx.
func FileName(patientName string, at time.Time) string {
	return fmt.Sprintf("reporte_%s_%s.xlsx", asciiName(patientName), at.Format("2006-01-02"))
}
