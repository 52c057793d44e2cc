package watch

import (
	"strings"
	"time"
)

const pulseWidth = 5

// Pulse lights up when agent output arrives and fades one dot every two
// seconds of silence.
type Pulse struct {
	lit  int
	last time.Time
}

func (p *Pulse) Hit(at time.Time) {
	p.lit = pulseWidth
	p.last = at
}

// Decay recomputes the lit dots for now.
func (p *Pulse) Decay(now time.Time) {
	if p.last.IsZero() {
		return
	}
	faded := int(now.Sub(p.last) / (2 * time.Second))
	p.lit = max(pulseWidth-faded, 0)
}

func (p Pulse) Lit() int {
	return p.lit
}

func (p Pulse) Last() time.Time {
	return p.last
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range pulseWidth {
		if i < p.lit {
			b.WriteString(theme.PulseActive.Render("●"))
		} else {
			b.WriteString(theme.PulseInactive.Render("○"))
		}
	}
	return b.String()
}
