// SPDX-License-Identifier: MIT

package urlregistry

import (
	"strings"

	"github.com/roomrec/roomrec/internal/resolver"
)

// MinLineLength is the shortest a non-comment line may be before it is
// silently ignored as noise (a bare host name, an empty line with stray
// whitespace, and so on).
const MinLineLength = 20

// AnchorLabelPrefix marks the field the registry itself appends after a
// room's first successful probe, distinct from a user-supplied label.
const AnchorLabelPrefix = "主播:"

var qualityNames = map[string]resolver.Quality{
	"原畫":       resolver.QualityOriginal,
	"original": resolver.QualityOriginal,
	"藍光":       resolver.QualityBluray,
	"bluray":   resolver.QualityBluray,
	"uhd":      resolver.QualityUHD,
	"hd":       resolver.QualityHD,
	"sd":       resolver.QualitySD,
	"ld":       resolver.QualityLD,
}

// splitFields splits on ASCII or fullwidth comma.
func splitFields(line string) []string {
	replaced := strings.ReplaceAll(line, "，", ",")
	parts := strings.Split(replaced, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ParseLine parses one line of the URL list into a Room. ok is false for
// lines that are blank, too short, or do not contain a URL field.
func ParseLine(rawLine string) (room Room, ok bool) {
	line := strings.TrimRight(rawLine, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Room{}, false
	}

	commented := strings.HasPrefix(trimmed, "#")
	content := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))

	if len(content) < MinLineLength {
		return Room{}, false
	}

	fields := splitFields(content)
	if len(fields) == 0 {
		return Room{}, false
	}

	room.Commented = commented
	room.RequestedQuality = resolver.QualityOriginal

	idx := 0
	if !looksLikeURL(fields[0]) {
		if q, ok := qualityNames[strings.ToLower(fields[0])]; ok {
			room.RequestedQuality = q
		}
		idx = 1
	}
	if idx >= len(fields) || !looksLikeURL(fields[idx]) {
		return Room{}, false
	}
	room.URL = fields[idx]
	idx++

	if idx < len(fields) && fields[idx] != "" {
		label := fields[idx]
		if strings.HasPrefix(label, AnchorLabelPrefix) {
			room.Anchor = strings.TrimSpace(strings.TrimPrefix(label, AnchorLabelPrefix))
		} else {
			room.DisplayName = label
		}
	}

	return room, true
}

// FormatAnchorLabel renders the anchor field appended after a room's first
// successful probe: "主播: <anchor>". AppendAnchor adds the separating comma.
func FormatAnchorLabel(anchor string) string {
	return AnchorLabelPrefix + " " + anchor
}
