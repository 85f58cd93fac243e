package i18n

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

var displayLayouts = map[language.Tag]string{
	language.AmericanEnglish:   "1/2/2006, 3:04:05 PM",
	language.BritishEnglish:    "02/01/2006, 15:04:05",
	language.German:            "2.1.2006, 15:04:05",
	language.French:            "02/01/2006 15:04:05",
	language.Japanese:          "2006/1/2 15:04:05",
	language.SimplifiedChinese: "2006/1/2 15:04:05",
}

// zoned layouts carry their own offset, the rest are read in the formatter's location
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}
	localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
)

// TimestampFormatter turns server timestamps into locale display strings.
type TimestampFormatter struct {
	layout   string
	location *time.Location
}

func NewTimestampFormatter(locale string, location *time.Location) *TimestampFormatter {
	if location == nil {
		location = time.Local
	}
	return &TimestampFormatter{
		layout:   displayLayouts[MatchLocale(locale)],
		location: location,
	}
}

// Format renders raw in the display layout. Input that matches none of the
// accepted layouts is returned unchanged.
func (f *TimestampFormatter) Format(raw string) string {
	t, ok := f.parse(strings.TrimSpace(raw))
	if !ok {
		return raw
	}
	return t.In(f.location).Format(f.layout)
}

func (f *TimestampFormatter) parse(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, f.location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
