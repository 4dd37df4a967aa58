// Package idgen produces merchant-side transaction ids such as PAYOUT_MC1Z0X4K7Q2B.
package idgen

import (
	"encoding/binary"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/google/uuid"
)

const (
	suffixLen   = 4
	suffixSpace = 36 * 36 * 36 * 36
)

// Generator issues ids of the form <KIND>_<base36 millis><base36 suffix>.
// The millisecond component never repeats within a process; the suffix keeps
// ids apart across replicas.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	now    func() time.Time
	suffix func() string
}

func New() *Generator {
	return &Generator{now: time.Now, suffix: randomSuffix}
}

// WithClock overrides the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	if now != nil {
		g.now = now
	}
	return g
}

// New returns a fresh id for the given kind.
func (g *Generator) New(kind domain.Kind) string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.lastMs {
		ms = g.lastMs + 1
	}
	g.lastMs = ms
	g.mu.Unlock()

	return kind.Prefix() + strings.ToUpper(strconv.FormatInt(ms, 36)) + g.suffix()
}

func randomSuffix() string {
	id := uuid.New()
	n := binary.BigEndian.Uint32(id[:4]) % suffixSpace
	s := strings.ToUpper(strconv.FormatUint(uint64(n), 36))
	if len(s) < suffixLen {
		s = strings.Repeat("0", suffixLen-len(s)) + s
	}
	return s
}
