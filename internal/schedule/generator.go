package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/CostinMirescu/sala-alternativa/internal/attendance"
	"github.com/CostinMirescu/sala-alternativa/internal/metrics"
)

// SessionWriter stores a session unless the class already has one starting
// at the same time, reporting whether it wrote a row.
type SessionWriter interface {
	InsertSession(ctx context.Context, s attendance.Session) (bool, error)
}

// Generator creates the timetable's sessions for a day. Running it again for
// the same day does not create duplicates.
type Generator struct {
	tt     *Timetable
	store  SessionWriter
	length time.Duration

	mu   sync.Mutex
	done map[string]bool
}

// NewGenerator creates a generator producing sessions of the given length.
func NewGenerator(tt *Timetable, store SessionWriter, length time.Duration) *Generator {
	if length <= 0 {
		length = 50 * time.Minute
	}
	return &Generator{tt: tt, store: store, length: length, done: map[string]bool{}}
}

// Ensure inserts the missing sessions for day and returns how many were created.
// A day that was fully generated once is skipped afterwards.
func (g *Generator) Ensure(ctx context.Context, day time.Time) (int, error) {
	key := day.Format("2006-01-02")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done[key] {
		return 0, nil
	}

	created := 0
	for _, slot := range g.tt.SlotsOn(day) {
		ok, err := g.store.InsertSession(ctx, attendance.Session{
			ClassID:  slot.ClassID,
			StartsAt: slot.Start,
			EndsAt:   slot.Start.Add(g.length),
		})
		if err != nil {
			return created, fmt.Errorf("session %s period %d: %w", slot.ClassID, slot.Period, err)
		}
		if ok {
			created++
		}
	}
	g.done[key] = true
	if created > 0 {
		metrics.SessionsGenerated.Add(float64(created))
		log.Printf("generated %d sessions for %s", created, key)
	}
	return created, nil
}
