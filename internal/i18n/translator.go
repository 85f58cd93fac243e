package i18n

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator resolves user-facing strings for the active locale.
type Translator interface {
	Translate(key string, args ...interface{}) string
}

var translations = map[string]map[language.Tag]string{
	"Jobs": {
		language.German:            "Aufträge",
		language.French:            "Tâches",
		language.Japanese:          "ジョブ",
		language.SimplifiedChinese: "任务",
	},
	"Page %d of %d (%d jobs)": {
		language.German:            "Seite %d von %d (%d Aufträge)",
		language.French:            "Page %d sur %d (%d tâches)",
		language.Japanese:          "%d / %d ページ (%d 件)",
		language.SimplifiedChinese: "第 %d / %d 页 (共 %d 个任务)",
	},
	"Loading...": {
		language.German:            "Wird geladen...",
		language.French:            "Chargement...",
		language.Japanese:          "読み込み中...",
		language.SimplifiedChinese: "加载中...",
	},
}

var defaultCatalog = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(Supported[0]))
	for key, byTag := range translations {
		for tag, msg := range byTag {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(fmt.Sprintf("i18n: invalid catalog entry %q: %v", key, err))
			}
		}
	}
	return b
}

type printerTranslator struct {
	printer *message.Printer
}

// NewTranslator returns a Translator for the closest supported locale.
func NewTranslator(locale string) Translator {
	tag := MatchLocale(locale)
	return &printerTranslator{printer: message.NewPrinter(tag, message.Catalog(defaultCatalog))}
}

func (t *printerTranslator) Translate(key string, args ...interface{}) string {
	return t.printer.Sprintf(key, args...)
}

type nullTranslator struct{}

// NullTranslator formats keys as-is.
func NullTranslator() Translator {
	return nullTranslator{}
}

func (nullTranslator) Translate(key string, args ...interface{}) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf(key, args...)
}
