package gpx

import (
	"fmt"
	"strings"
	"time"

	"trailhead/pkg/models"
)

// WriteGPX regenerates a GPX 1.1 document from a stored track. Coordinates
// are written with 6 decimal places, elevation with 2, timestamps in UTC
// with a Z suffix. The document carries a single <trk> with one <trkseg>.
func WriteGPX(track *models.Track) []byte {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.1" creator="trailhead" xmlns="http://www.topografix.com/GPX/1/1">` + "\n")

	b.WriteString("  <trk>\n")
	fmt.Fprintf(&b, "    <name>%s</name>\n", escapeXML(track.Name))
	if track.Description != "" {
		fmt.Fprintf(&b, "    <desc>%s</desc>\n", escapeXML(track.Description))
	}
	b.WriteString("    <trkseg>\n")

	for _, pt := range track.Points {
		fmt.Fprintf(&b, `      <trkpt lat="%.6f" lon="%.6f">`+"\n", pt.Latitude, pt.Longitude)
		if pt.Elevation != nil {
			fmt.Fprintf(&b, "        <ele>%.2f</ele>\n", *pt.Elevation)
		}
		if pt.Time != nil {
			fmt.Fprintf(&b, "        <time>%s</time>\n", pt.Time.UTC().Format(time.RFC3339))
		}
		b.WriteString("      </trkpt>\n")
	}

	b.WriteString("    </trkseg>\n")
	b.WriteString("  </trk>\n")
	b.WriteString("</gpx>\n")

	return []byte(b.String())
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
