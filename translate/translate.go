// Package translate formats user-facing messages for the current locale.
package translate

import (
	"log"
	"sync"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer      *message.Printer
	printerOnce  sync.Once
	printerMutex sync.RWMutex
)

// defaultLocale is used when the user locale cannot be determined.
const defaultLocale = "en-US"

func setup() {
	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("translate: locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{defaultLocale}
	}

	printer = message.NewPrinter(message.MatchLanguage(locales...))
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	printerOnce.Do(setup)

	printerMutex.RLock()
	defer printerMutex.RUnlock()

	return printer.Sprintf(key, args...)
}

// Using replaces the message printer with one for the given language tag.
// Mostly useful for tests that need stable number formatting.
func Using(tag language.Tag) {
	printerOnce.Do(func() {})

	printerMutex.Lock()
	defer printerMutex.Unlock()

	printer = message.NewPrinter(tag)
}
