package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"collegead.ai/internal/sim/model"
)

// stateDigest hashes everything that feeds the next tick, in a fixed order,
// so two runs with the same seed can be compared week by week.
func (w *World) stateDigest() string {
	h := sha256.New()
	var tmp [8]byte
	putU := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	putF := func(v float64) { putU(math.Float64bits(v)) }
	putS := func(s string) {
		putU(uint64(len(s)))
		h.Write([]byte(s))
	}
	putFloats := func(m map[string]float64) {
		putU(uint64(len(m)))
		for _, k := range model.SortedKeys(m) {
			putS(k)
			putF(m[k])
		}
	}

	putU(uint64(int64(w.week)))
	putU(w.cfg.Seed)
	putU(w.cfg.Stream)

	putF(w.meters.Sentiment)
	putF(w.meters.MediaHeat)
	putF(w.meters.DonorYieldMul)
	if w.meters.Prestige != nil {
		putF(*w.meters.Prestige)
	}

	ids := make([]int, len(w.coaches))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(a, b int) bool { return w.coaches[ids[a]].ID < w.coaches[ids[b]].ID })
	for _, i := range ids {
		c := w.coaches[i]
		putS(c.ID)
		putFloats(c.Traits)
		for _, tr := range model.SortedKeys(c.Subtraits) {
			putS(tr)
			putFloats(c.Subtraits[tr])
		}
		putFloats(c.Cultivation)
		putFloats(c.EraWaterline)
		for _, ctx := range c.ActiveContexts {
			putS(ctx)
		}
		putFloats(c.RegCooldowns)
		for _, p := range c.RegPersistence {
			putS(p.EventID)
			putF(p.RemainingWeeks)
			putF(p.Intensity)
			putS(p.Context)
		}
		for _, id := range c.RegSpent {
			putS(id)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
