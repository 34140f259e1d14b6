package syncdisplay

import (
	"fmt"
	"io"
	"strings"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
)

// TextRenderer draws each view as plain text, one frame per Render call.
type TextRenderer struct {
	w io.Writer
}

func NewTextRenderer(w io.Writer) *TextRenderer { return &TextRenderer{w: w} }

func (r *TextRenderer) Render(v View) error {
	var b strings.Builder
	b.WriteString(v.Title)
	b.WriteByte('\n')

	if v.State != StateReady {
		b.WriteString("Loading encounter...\n")
		_, err := io.WriteString(r.w, b.String())
		return err
	}

	fmt.Fprintf(&b, "Round %d", v.Snapshot.RoundNumber)
	if v.Snapshot.Transitioning {
		b.WriteString(" (changing turn)")
	}
	b.WriteByte('\n')

	if len(v.Lineup.Order) == 0 {
		b.WriteString("No creatures in this encounter\n")
		_, err := io.WriteString(r.w, b.String())
		return err
	}

	for i, c := range v.Lineup.Order {
		marker := "  "
		if i == v.Snapshot.TurnIndex {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%-24s %3d  %s\n", marker, c.Name, c.Initiative, c.Type.Label())
	}
	fmt.Fprintf(&b, "Current: %s | Next: %s | On deck: %s\n",
		slot(v.Lineup.Current), slot(v.Lineup.Next), slot(v.Lineup.OnDeck))

	_, err := io.WriteString(r.w, b.String())
	return err
}

func slot(c *encounter.Creature) string {
	if c == nil {
		return "-"
	}
	return c.Name
}
