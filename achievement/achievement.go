// Package achievement turns certificate selections into a 0-100 achievement score.
package achievement

import (
	"math"
	"sort"
	"strings"

	"github.com/teranos/scholar/errors"
)

// DefaultScore is used when no certificate detail is selected.
const DefaultScore = 50.0

// Source records where an achievement score came from.
type Source string

const (
	SourceManual       Source = "manual"
	SourceCertificates Source = "certificates"
	SourceDefault      Source = "default"
)

// Competition level of the certificate.
var Levels = map[string]float64{
	"local":         60,
	"national":      80,
	"international": 95,
}

// Nomination reached in the competition.
var Nominations = map[string]float64{
	"participant": 40,
	"finalist":    60,
	"nominee":     75,
}

// Placements: "none" for no podium finish, otherwise the rank.
var Placements = map[string]float64{
	"none": 40,
	"3":    70,
	"2":    85,
	"1":    95,
}

// Certificate is the applicant's certificate selection. Empty fields are
// not selected.
type Certificate struct {
	Level      string `json:"level,omitempty"`
	Nomination string `json:"nomination,omitempty"`
	Placement  string `json:"placement,omitempty"`
}

// Empty reports whether nothing is selected.
func (c Certificate) Empty() bool {
	return c.Level == "" && c.Nomination == "" && c.Placement == ""
}

// Score averages the selected fields. ok is false when nothing is selected.
func (c Certificate) Score() (score float64, ok bool, err error) {
	var values []float64
	for _, f := range []struct {
		kind  string
		value string
		table map[string]float64
	}{
		{"level", c.Level, Levels},
		{"nomination", c.Nomination, Nominations},
		{"placement", c.Placement, Placements},
	} {
		key := strings.ToLower(strings.TrimSpace(f.value))
		if key == "" {
			continue
		}
		v, found := f.table[key]
		if !found {
			return 0, false, errors.WithHintf(
				errors.Newf("unknown %s %q", f.kind, f.value),
				"%s must be one of %s", f.kind, strings.Join(Options(f.table), ", "))
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, false, nil
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true, nil
}

// Resolve picks the achievement score: a manual entry wins, then the
// certificate average, then DefaultScore.
func Resolve(manual *float64, cert Certificate) (float64, Source, error) {
	if manual != nil {
		m := *manual
		if math.IsNaN(m) || m < 0 || m > 100 {
			return 0, "", errors.WithHint(
				errors.Newf("achievement score %g out of range", m),
				"achievement score must be between 0 and 100")
		}
		return m, SourceManual, nil
	}

	score, ok, err := cert.Score()
	if err != nil {
		return 0, "", err
	}
	if !ok {
		return DefaultScore, SourceDefault, nil
	}
	return score, SourceCertificates, nil
}

// Options lists the accepted keys of a table, ordered by score.
func Options(table map[string]float64) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if table[keys[i]] != table[keys[j]] {
			return table[keys[i]] < table[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
