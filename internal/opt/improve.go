package opt

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// improve runs a short adaptive large neighbourhood search over a complete plan: remove a
// few demand points (at random, the most expensive ones, or everything served by one
// facility), reinsert them greedily or by regret, and accept by simulated annealing.
// The random source is seeded so results are reproducible. A non-zero deadline stops the
// search early.
func improve(in *instance, start plan, iterations int, seed int64, deadline time.Time) plan {
	if iterations <= 0 || len(start.assign) < 2 {
		return start
	}
	rng := rand.New(rand.NewSource(seed))
	curr, best := start.clone(), start.clone()
	currCost := curr.cost(in)
	bestCost := currCost
	remW := []float64{1, 1, 1} // random, worst, facility
	insW := []float64{1, 1}    // greedy, regret2
	temp := math.Max(1e-6, 0.05*currCost/float64(len(curr.assign)))
	const cool = 0.995

	for it := 0; it < iterations; it++ {
		if !deadline.IsZero() && it%16 == 0 && time.Now().After(deadline) {
			break
		}
		op := selectOp(remW, rng)
		ip := selectOp(insW, rng)
		cand := curr.clone()
		var removed []int
		switch op {
		case 0:
			removed = randomRemoval(cand, 1+rng.Intn(3), rng)
		case 1:
			removed = worstRemoval(in, cand, 1+rng.Intn(3))
		case 2:
			removed = facilityRemoval(cand, rng)
		}
		for _, i := range removed {
			cand.unplace(in, i)
		}
		var ok bool
		switch ip {
		case 0:
			ok = greedyInsert(in, &cand, removed)
		case 1:
			ok = regretInsert(in, &cand, removed)
		}
		if !ok {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			continue
		}
		c := cand.cost(in)
		delta := c - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/temp) {
			curr, currCost = cand, c
			if c < bestCost-1e-12 {
				best, bestCost = cand.clone(), c
				remW[op] += 0.1
				insW[ip] += 0.1
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
			}
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= cool
	}
	return best
}

func randomRemoval(p plan, k int, rng *rand.Rand) []int {
	if k > len(p.assign) {
		k = len(p.assign)
	}
	return rng.Perm(len(p.assign))[:k]
}

// worstRemoval picks the k demand points with the highest service cost.
func worstRemoval(in *instance, p plan, k int) []int {
	idx := make([]int, len(p.assign))
	for i := range idx {
		idx[i] = i
	}
	unit := func(i int) float64 { return in.cost[i][p.assign[i]] * float64(in.qty[i]) }
	sort.SliceStable(idx, func(a, b int) bool { return unit(idx[a]) > unit(idx[b]) })
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

// facilityRemoval empties one open facility so the reinsertion may close it.
func facilityRemoval(p plan, rng *rand.Rand) []int {
	var open []int
	for j, n := range p.count {
		if n > 0 {
			open = append(open, j)
		}
	}
	if len(open) == 0 {
		return nil
	}
	j := open[rng.Intn(len(open))]
	var out []int
	for i, a := range p.assign {
		if a == j {
			out = append(out, i)
		}
	}
	return out
}

// selectOp picks an operator index by roulette wheel over weights.
func selectOp(weights []float64, rng *rand.Rand) int {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	r := rng.Float64() * sum
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}
