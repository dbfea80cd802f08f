// Package coords finds coordinate reports in free-form channel text.
package coords

import (
	"regexp"
	"strconv"
	"strings"
)

// space is any Unicode whitespace, including no-break and other separators
// that phone keyboards insert.
const space = `[\s\v\p{Z}\x{1c}-\x{1f}\x{85}]`

// coordPair matches "<lat>[,] <lon>" with an optional trailing standalone
// 2-hex-character repeater ID that should be skipped when attributing hops.
var coordPair = regexp.MustCompile(
	`(?P<lat>[+-]?\d+(?:\.\d+)?)` + // latitude
		space + `*,?` + space + `+` + // whitespace, optional comma
		`(?P<lon>[+-]?\d+(?:\.\d+)?)` + // longitude
		`(?:` + space + `+(?P<ignored>[0-9a-fA-F]{2})\b)?`, // optional ignored repeater id
)

var (
	latIdx     = coordPair.SubexpIndex("lat")
	lonIdx     = coordPair.SubexpIndex("lon")
	ignoredIdx = coordPair.SubexpIndex("ignored")
)

// Match is a coordinate pair extracted from text.
type Match struct {
	Lat float64
	Lon float64
	// Ignored is a lowercase 2-character hop ID, or "" when absent.
	Ignored string
}

// Extract returns the first coordinate pair in text. Later matches are
// ignored.
func Extract(text string) (Match, bool) {
	m := coordPair.FindStringSubmatch(text)
	if m == nil {
		return Match{}, false
	}

	lat, err := strconv.ParseFloat(m[latIdx], 64)
	if err != nil {
		return Match{}, false
	}
	lon, err := strconv.ParseFloat(m[lonIdx], 64)
	if err != nil {
		return Match{}, false
	}

	return Match{
		Lat:     lat,
		Lon:     lon,
		Ignored: strings.ToLower(m[ignoredIdx]),
	}, true
}
