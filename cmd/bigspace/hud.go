package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/system"
)

const speedOfLight = 3.0e8

// renderHUD formats the state of partition p's camera the way an on-screen
// overlay would show it.
func renderHUD(w *system.World, p models.PartitionID) (string, error) {
	tel, err := w.Telemetry(p)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if !tel.Active {
		fmt.Fprintf(&b, "Origin #%d: none\n", p)
		return b.String(), nil
	}
	c, t := tel.OriginCell, tel.OriginTranslation
	fmt.Fprintf(&b, "Origin #%d: GridCell: %sx, %sy, %sz\n", p, c.X, c.Y, c.Z)
	fmt.Fprintf(&b, "Transform: %8.2fx, %8.2fy, %8.2fz\n", t[0], t[1], t[2])

	speed := tel.Velocity.Len()
	if speed > speedOfLight {
		fmt.Fprintf(&b, "Speed: %.0e * speed of light\n", speed/speedOfLight)
	} else {
		fmt.Fprintf(&b, "Speed: %.2e m/s\n", speed)
	}

	if tel.Nearest != nil {
		s, err := w.Get(p, tel.Nearest.Entity)
		if err == nil {
			dia := s.Local.MaxScale()
			f := closestFact(dia)
			fmt.Fprintf(&b, "Nearest sphere distance: %.0e m\n", tel.Nearest.Distance)
			fmt.Fprintf(&b, "Nearest sphere diameter: %.0e m\n", dia)
			fmt.Fprintf(&b, "%.1fx %s\n", dia/f.size, f.what)
		}
	}
	return b.String(), nil
}

func printHUD(out io.Writer, w *system.World, report system.FrameReport) {
	fmt.Fprintf(out, "== frame %d (%s) ==\n", report.Frame, report.Duration)
	for i := 0; i < w.PartitionCount(); i++ {
		hud, err := renderHUD(w, models.PartitionID(i))
		if err != nil {
			continue
		}
		fmt.Fprint(out, hud)
	}
	for _, d := range report.Diagnostics {
		fmt.Fprintf(out, "! %v\n", d)
	}
}
