// Package ledger keeps the client's view of the user's balance: the last
// authoritative value reported by the backend plus optimistic adjustments
// applied after rewarded views and paid applications.
package ledger

import (
	"sync"
	"time"
)

// Snapshot is the last authoritative balance and the sequence number of the
// request that produced it.
type Snapshot struct {
	Balance float64
	Seq     uint64
	Known   bool
}

// Adjustment is an optimistic change waiting to be confirmed by a refetch.
type Adjustment struct {
	Amount float64
	Seq    uint64
	Entry  Entry
}

// Reconcile computes the projected balance from the two slots: the snapshot
// plus every adjustment confirmed after it was installed.
func Reconcile(snap Snapshot, pending []Adjustment) float64 {
	balance := snap.Balance
	for _, a := range pending {
		balance += a.Amount
	}
	return balance
}

// Projection is safe for concurrent use.
type Projection struct {
	mu      sync.Mutex
	seq     uint64
	snap    Snapshot
	pending []Adjustment
	journal []Entry
	floor   uint64 // requests marked before the last Reset
	landed  uint64 // counter value when the snapshot was installed
	now     func() time.Time
}

func NewProjection() *Projection {
	return &Projection{now: time.Now}
}

// Mark issues the sequence number for a request that is about to start.
func (p *Projection) Mark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// Refresh installs an authoritative balance fetched by the request marked seq
// and drops every pending adjustment; the server value already accounts for
// them or will on the next refetch. It returns false for requests started
// before the last Reset or before the installed snapshot's request.
func (p *Projection) Refresh(balance float64, seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.floor || seq < p.snap.Seq {
		return false
	}
	p.snap = Snapshot{Balance: balance, Seq: seq, Known: true}
	p.pending = nil
	p.landed = p.seq
	return true
}

// Credit records a confirmed reward for ad ref from the request marked seq.
func (p *Projection) Credit(amount float64, seq uint64, ref int64) bool {
	return p.apply(Entry{Type: EntryAdReward, Amount: amount, Ref: ref}, seq)
}

// Debit records a confirmed application cost for application ref from the
// request marked seq.
func (p *Projection) Debit(amount float64, seq uint64, ref int64) bool {
	return p.apply(Entry{Type: EntryApplicationCost, Amount: amount, Ref: ref}, seq)
}

// apply journals the entry and adds it to the pending adjustments unless a
// snapshot landed while its request was in flight.
func (p *Projection) apply(e Entry, seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.floor {
		return false
	}
	e.At = p.now()
	p.journal = append(p.journal, e)
	if seq <= p.landed {
		return false
	}
	p.pending = append(p.pending, Adjustment{Amount: e.Signed(), Seq: seq, Entry: e})
	return true
}

// Balance is the projected balance.
func (p *Projection) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Reconcile(p.snap, p.pending)
}

// Stale reports whether the balance is not backed by a snapshot or carries
// unconfirmed adjustments.
func (p *Projection) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.snap.Known || len(p.pending) > 0
}

func (p *Projection) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Projection) Pending() []Adjustment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Adjustment, len(p.pending))
	copy(out, p.pending)
	return out
}

// Entries returns the journal of confirmed changes in arrival order.
func (p *Projection) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.journal))
	copy(out, p.journal)
	return out
}

// Expected is initial plus every journaled reward minus every journaled cost.
func (p *Projection) Expected(initial float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := initial
	for _, e := range p.journal {
		total += e.Signed()
	}
	return total
}

// Reset forgets everything except the sequence counter, so results of
// requests started before the reset can never install a snapshot.
func (p *Projection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.floor = p.seq + 1
	p.landed = p.seq
	p.snap = Snapshot{Seq: p.floor}
	p.pending = nil
	p.journal = nil
}
