// SPDX-License-Identifier: MIT

// Package i18n provides the console-output translation seam named in the
// design notes as the replacement for monkey-patching print itself: rather
// than wrapping builtins.print at the call site (the original's
// translated_print, keyed off the caller's package name), status output
// goes through a narrow Localizer interface that status.Reporter holds as a
// field, consulted only at its fixed console-label call sites. The menu
// package does not use it.
package i18n

import "fmt"

// Localizer translates a message key, formatting args into it printf-style.
// T looks key up and falls back to key itself (formatted) when no
// translation exists, so an incomplete catalog never produces a blank line.
type Localizer interface {
	T(key string, args ...any) string
}

// Identity is the default Localizer: it formats key directly against args,
// performing no translation. Components default to it so the translation
// seam is opt-in.
type Identity struct{}

// T implements Localizer by treating key as a fmt.Sprintf format string.
func (Identity) T(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf(key, args...)
}

// MapLocalizer translates by exact key lookup into Catalog, falling back to
// Identity when a key is missing. Catalog entries are themselves printf-style
// format strings, so a translated phrase can still carry interpolated args.
type MapLocalizer struct {
	Catalog map[string]string
}

// T implements Localizer.
func (m MapLocalizer) T(key string, args ...any) string {
	format, ok := m.Catalog[key]
	if !ok {
		format = key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
