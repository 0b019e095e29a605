package drip

import (
	"math/big"
	"sort"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// VolumeDrip pays DripAmount per period, split across holders by their share
// of the volume recorded in that period. Periods sit on a fixed grid anchored
// at StartTime; a period record is created the first time volume lands in it
// and pruned once every holder has claimed it.
type VolumeDrip struct {
	PeriodSeconds int64
	DripAmount    *big.Int
	StartTime     int64
	EndTime       int64
	Active        bool

	// seqOffset keeps sequence numbers increasing when a drip is re-anchored
	// by reactivation.
	seqOffset int64
	current   int64
	periods   map[int64]*period
	byHolder  map[string]map[int64]struct{}
}

type period struct {
	start, end int64
	total      *big.Int
	dripAmount *big.Int
	volumes    map[string]*big.Int
}

// PeriodView describes one materialized period.
type PeriodView struct {
	Seq         int64    `json:"seq"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	TotalVolume *big.Int `json:"total_volume"`
	DripAmount  *big.Int `json:"drip_amount"`
	Closed      bool     `json:"closed"`
}

func newVolumeDrip(periodSeconds int64, amount *big.Int, start, end int64) *VolumeDrip {
	return &VolumeDrip{
		PeriodSeconds: periodSeconds,
		DripAmount:    fixedpoint.Clone(amount),
		StartTime:     start,
		EndTime:       end,
		Active:        true,
		periods:       make(map[int64]*period),
		byHolder:      make(map[string]map[int64]struct{}),
	}
}

func (d *VolumeDrip) seqAt(now int64) int64 {
	if now <= d.StartTime {
		return d.seqOffset
	}
	return d.seqOffset + (now-d.StartTime)/d.PeriodSeconds
}

func (d *VolumeDrip) bounds(seq int64) (start, end int64) {
	start = d.StartTime + (seq-d.seqOffset)*d.PeriodSeconds
	return start, start + d.PeriodSeconds
}

func (p *period) closed(now int64) bool { return now >= p.end }

func (d *VolumeDrip) accepting(now int64) bool {
	return d.Active && (d.EndTime == 0 || now < d.EndTime)
}

// record rolls to the period containing now and adds amount to holder's volume.
func (d *VolumeDrip) record(holder string, amount *big.Int, now int64) {
	if !d.accepting(now) || amount.Sign() <= 0 {
		return
	}
	seq := d.seqAt(now)
	d.current = seq
	p, ok := d.periods[seq]
	if !ok {
		start, end := d.bounds(seq)
		p = &period{
			start:      start,
			end:        end,
			total:      new(big.Int),
			dripAmount: fixedpoint.Clone(d.DripAmount),
			volumes:    make(map[string]*big.Int),
		}
		d.periods[seq] = p
	}
	vol, ok := p.volumes[holder]
	if !ok {
		vol = new(big.Int)
		p.volumes[holder] = vol
	}
	vol.Add(vol, amount)
	p.total.Add(p.total, amount)

	set, ok := d.byHolder[holder]
	if !ok {
		set = make(map[int64]struct{})
		d.byHolder[holder] = set
	}
	set[seq] = struct{}{}
}

// unrecord removes up to amount of holder's volume from the period
// containing now.
func (d *VolumeDrip) unrecord(holder string, amount *big.Int, now int64) {
	if !d.accepting(now) || amount.Sign() <= 0 {
		return
	}
	seq := d.seqAt(now)
	p, ok := d.periods[seq]
	if !ok {
		return
	}
	vol, ok := p.volumes[holder]
	if !ok {
		return
	}
	take := amount
	if vol.Cmp(take) < 0 {
		take = vol
	}
	p.total.Sub(p.total, take)
	vol.Sub(vol, take)
	if vol.Sign() == 0 {
		delete(p.volumes, holder)
		if len(p.volumes) == 0 {
			delete(d.periods, seq)
		}
		delete(d.byHolder[holder], seq)
		if len(d.byHolder[holder]) == 0 {
			delete(d.byHolder, holder)
		}
	}
}

// share is holder's cut of a period: dripAmount * volume / total.
func (p *period) share(holder string) *big.Int {
	vol, ok := p.volumes[holder]
	if !ok || p.total.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(p.dripAmount, vol)
	return out.Quo(out, p.total)
}

// collectPeriod pays holder's share of a closed period once and prunes the
// period when nobody is left to claim it.
func (d *VolumeDrip) collectPeriod(holder string, seq, now int64) *big.Int {
	p, ok := d.periods[seq]
	if !ok || !p.closed(now) {
		return new(big.Int)
	}
	if _, ok := p.volumes[holder]; !ok {
		return new(big.Int)
	}
	amount := p.share(holder)
	delete(p.volumes, holder)
	if len(p.volumes) == 0 {
		delete(d.periods, seq)
	}
	if set := d.byHolder[holder]; set != nil {
		delete(set, seq)
		if len(set) == 0 {
			delete(d.byHolder, holder)
		}
	}
	return amount
}

// collect pays every closed period holder has volume in.
func (d *VolumeDrip) collect(holder string, now int64) *big.Int {
	total := new(big.Int)
	for _, seq := range d.holderSeqs(holder) {
		total.Add(total, d.collectPeriod(holder, seq, now))
	}
	return total
}

// pending is collect without side effects.
func (d *VolumeDrip) pending(holder string, now int64) *big.Int {
	total := new(big.Int)
	for _, seq := range d.holderSeqs(holder) {
		if p := d.periods[seq]; p.closed(now) {
			total.Add(total, p.share(holder))
		}
	}
	return total
}

func (d *VolumeDrip) holderSeqs(holder string) []int64 {
	seqs := make([]int64, 0, len(d.byHolder[holder]))
	for seq := range d.byHolder[holder] {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

func (d *VolumeDrip) reanchor(periodSeconds int64, amount *big.Int, start, end int64) {
	next := d.current + 1
	for seq := range d.periods {
		if seq >= next {
			next = seq + 1
		}
	}
	d.seqOffset = next
	d.current = next
	d.PeriodSeconds = periodSeconds
	d.DripAmount = fixedpoint.Clone(amount)
	d.StartTime = start
	d.EndTime = end
	d.Active = true
}

func (d *VolumeDrip) views(now int64) []PeriodView {
	out := make([]PeriodView, 0, len(d.periods))
	for seq, p := range d.periods {
		out = append(out, PeriodView{
			Seq:         seq,
			Start:       p.start,
			End:         p.end,
			TotalVolume: fixedpoint.Clone(p.total),
			DripAmount:  fixedpoint.Clone(p.dripAmount),
			Closed:      p.closed(now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
