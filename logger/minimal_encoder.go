package logger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// palette is one console color theme.
type palette struct {
	fg       string
	time     string
	id       string
	number   string
	accent   string
	warn     string
	warnBg   string
	err      string
	errBg    string
	tiers    map[string]string
	rotation []string // component name colors
}

var palettes = map[string]palette{
	// Everforest Dark: natural forest greens
	"everforest": {
		fg:       "\x1b[38;5;223m",
		time:     "\x1b[38;5;107m",
		id:       "\x1b[38;5;109m",
		number:   "\x1b[38;5;108m",
		accent:   "\x1b[38;5;208m",
		warn:     "\x1b[38;5;179m",
		warnBg:   "\x1b[48;5;58m",
		err:      "\x1b[38;5;167m",
		errBg:    "\x1b[48;5;52m",
		tiers:    map[string]string{"very-high": "\x1b[38;5;108m", "high": "\x1b[38;5;107m", "medium": "\x1b[38;5;179m", "low": "\x1b[38;5;167m"},
		rotation: []string{"\x1b[38;5;108m", "\x1b[38;5;65m", "\x1b[38;5;208m"},
	},
	// Gruvbox Dark: warm, muted
	"gruvbox": {
		fg:       "\x1b[38;5;223m",
		time:     "\x1b[38;5;108m",
		id:       "\x1b[38;5;109m",
		number:   "\x1b[38;5;175m",
		accent:   "\x1b[38;5;208m",
		warn:     "\x1b[38;5;214m",
		warnBg:   "\x1b[48;5;58m",
		err:      "\x1b[38;5;167m",
		errBg:    "\x1b[48;5;88m",
		tiers:    map[string]string{"very-high": "\x1b[38;5;142m", "high": "\x1b[38;5;108m", "medium": "\x1b[38;5;214m", "low": "\x1b[38;5;167m"},
		rotation: []string{"\x1b[38;5;208m", "\x1b[38;5;214m"},
	},
}

// Current active theme (set by Initialize)
var currentTheme = "everforest"

// SetTheme selects a palette. Unknown names are ignored.
func SetTheme(theme string) bool {
	if _, ok := palettes[theme]; !ok {
		return false
	}
	currentTheme = theme
	return true
}

func colors() palette { return palettes[currentTheme] }

// colorComponent hashes the name so a component keeps its color
func colorComponent(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	rot := colors().rotation
	return rot[hash%len(rot)]
}

var bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// colorizeMessage highlights bracketed markers such as [reload] or [R3]
func colorizeMessage(msg string) string {
	p := colors()
	var result strings.Builder
	last := 0
	for _, m := range bracketPattern.FindAllStringIndex(msg, -1) {
		if m[0] > last {
			result.WriteString(p.fg + msg[last:m[0]] + colorReset)
		}
		result.WriteString(p.accent + msg[m[0]:m[1]] + colorReset)
		last = m[1]
	}
	if last < len(msg) {
		result.WriteString(p.fg + msg[last:] + colorReset)
	}
	return result.String()
}

// minimalEncoder implements a calm, compact console encoder with theme support
// Format: "13:04:35  server  Applicant assessed  3f2c… 80.59 high  method=POST"
type minimalEncoder struct {
	zapcore.Encoder
	fields []zapcore.Field // accumulated via With
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		fields:  append([]zapcore.Field(nil), enc.fields...),
	}
}

// AddString and friends are reached through logger.With; keep the fields so
// they are rendered with every entry.
func (enc *minimalEncoder) AddString(key, value string) {
	enc.fields = append(enc.fields, zap.String(key, value))
}

func (enc *minimalEncoder) AddReflected(key string, value interface{}) error {
	enc.fields = append(enc.fields, zap.Any(key, value))
	return nil
}

func (enc *minimalEncoder) AddInt64(key string, value int64) {
	enc.fields = append(enc.fields, zap.Int64(key, value))
}

func (enc *minimalEncoder) AddFloat64(key string, value float64) {
	enc.fields = append(enc.fields, zap.Float64(key, value))
}

func (enc *minimalEncoder) AddBool(key string, value bool) {
	enc.fields = append(enc.fields, zap.Bool(key, value))
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	p := colors()
	final := buffer.NewPool().Get()

	final.AppendString(p.time + ent.Time.Format("15:04:05") + colorReset)

	// Level: only shown when not INFO
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName) + abbreviateName(ent.LoggerName) + colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorizeMessage(ent.Message))

	all := append(append([]zapcore.Field(nil), enc.fields...), fields...)
	if s := formatFields(all); s != "" {
		final.AppendString("  ")
		final.AppendString(s)
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for non-INFO levels
func levelColorString(level zapcore.Level) string {
	p := colors()
	switch level {
	case zapcore.DebugLevel:
		return p.fg + "DEBUG" + colorReset
	case zapcore.WarnLevel:
		return colorBold + p.warnBg + p.warn + "WARN" + colorReset
	default:
		return colorBold + p.errBg + p.err + level.CapitalString() + colorReset
	}
}

// abbreviateName shortens component names: server.http -> s.http
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// fieldValue renders any zap field through a map encoder.
func fieldValue(field zapcore.Field) string {
	enc := zapcore.NewMapObjectEncoder()
	field.AddTo(enc)
	v, ok := enc.Fields[field.Key]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

// formatFields puts ID, score and tier first in their own colors, then every
// other field as key=value. No field is dropped.
func formatFields(fields []zapcore.Field) string {
	p := colors()
	var head, rest []string
	for _, field := range fields {
		val := fieldValue(field)
		switch field.Key {
		case FieldAssessmentID, FieldRequestID, "id":
			head = append(head, p.id+val+colorReset)
		case FieldScore:
			head = append(head, p.number+val+colorReset)
		case FieldTier:
			color, ok := p.tiers[val]
			if !ok {
				color = p.fg
			}
			head = append(head, color+val+colorReset)
		case FieldDurationMS:
			head = append(head, p.number+val+colorReset+"ms")
		default:
			rest = append(rest, p.fg+field.Key+"="+val+colorReset)
		}
	}
	sort.Strings(rest)
	return strings.Join(append(head, rest...), " ")
}
