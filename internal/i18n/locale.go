package i18n

import (
	"golang.org/x/text/language"
)

// Supported lists the locales with a message catalog and a timestamp layout.
// The first entry is the fallback.
var Supported = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.German,
	language.French,
	language.Japanese,
	language.SimplifiedChinese,
}

var matcher = language.NewMatcher(Supported)

// MatchLocale maps a BCP 47 string such as "de-AT" or "en_GB" onto the
// closest supported locale. Empty or unparseable input yields en-US.
func MatchLocale(locale string) language.Tag {
	if locale == "" {
		return Supported[0]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return Supported[0]
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Supported[0]
	}
	return Supported[idx]
}
