package tui

import (
	"strings"
	"time"
)

// Spinner lights up on events and fades over ten seconds.
type Spinner struct {
	dots      int
	lastEvent time.Time
}

func (s *Spinner) OnEvent() {
	s.dots = 5
	s.lastEvent = time.Now()
}

func (s *Spinner) Decay() {
	if s.dots == 0 {
		return
	}
	s.dots = max(0, 5-int(time.Since(s.lastEvent)/(2*time.Second)))
}

func (s Spinner) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < s.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (s Spinner) LastEvent() time.Time { return s.lastEvent }
