// Package numbering issues human-facing ticket numbers.
//
// Numbers have the form PREFIX-YYYYMMDD-NNNNNN. The counter is global rather than per day and
// comes from a Sequencer that never hands a value out twice, deleted tickets included. The
// Postgres UNIQUE constraint on ticket_number remains the backstop.
package numbering

import (
	"context"
	"fmt"
	"time"
)

// DefaultPrefix is used when none is configured.
const DefaultPrefix = "TKT"

// Generator returns a fresh ticket number on every call.
type Generator interface {
	Next(ctx context.Context) (string, error)
}

// Sequencer draws counter values from durable storage.
type Sequencer interface {
	NextSequence(ctx context.Context) (int64, error)
}

// Format renders a ticket number.
func Format(prefix string, day time.Time, seq int64) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, day.UTC().Format("20060102"), seq)
}

// SequenceGenerator formats numbers around the values of a Sequencer.
type SequenceGenerator struct {
	seq    Sequencer
	prefix string
	now    func() time.Time
}

// NewSequenceGenerator builds a generator over seq.
func NewSequenceGenerator(seq Sequencer, prefix string, now func() time.Time) *SequenceGenerator {
	if now == nil {
		now = time.Now
	}
	return &SequenceGenerator{seq: seq, prefix: prefix, now: now}
}

func (g *SequenceGenerator) Next(ctx context.Context) (string, error) {
	n, err := g.seq.NextSequence(ctx)
	if err != nil {
		return "", fmt.Errorf("next ticket sequence: %w", err)
	}
	return Format(g.prefix, g.now(), n), nil
}
