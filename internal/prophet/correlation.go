package prophet

import (
	"math"

	"github.com/ja7ad/preheatd/internal/numeric"
)

// epsilon regularizes the correlation's variance terms so a Markov
// with too little history (near-zero variance on either side) yields
// a small but defined correlation instead of a division by zero.
const epsilon = 1e-6

// regularizedCorrelation estimates the Pearson correlation between A's
// and B's running state across a Markov edge's observed history.
// weight[s1][s2] is treated as a joint-state transition count and
// time[s] as the occupancy (seconds spent) in state s; both are folded
// into a 4-bucket empirical distribution over the state space
// {00,01,10,11} from which the two binary marginals (A running, B
// running) and their covariance are derived directly, without
// reconstructing an explicit sample sequence.
func regularizedCorrelation(weight, timeOcc [4]float64) float64 {
	var total float64
	for s := 0; s < 4; s++ {
		total += timeOcc[s]
	}
	if total <= 0 {
		// No observed dwell time at all: fall back to the transition
		// counts themselves as the occupancy proxy.
		for s := 0; s < 4; s++ {
			total += weight[s][s]
		}
		if total <= 0 {
			return 0
		}
		for s := 0; s < 4; s++ {
			timeOcc[s] = weight[s][s]
		}
	}

	var pA, pB float64 // P(A running), P(B running)
	var pAB float64    // P(A running AND B running)
	for s := 0; s < 4; s++ {
		p := timeOcc[s] / total
		aRunning := s&1 != 0
		bRunning := s&2 != 0
		if aRunning {
			pA += p
		}
		if bRunning {
			pB += p
		}
		if aRunning && bRunning {
			pAB += p
		}
	}

	cov := pAB - pA*pB
	varA := pA * (1 - pA)
	varB := pB * (1 - pB)

	denom := math.Sqrt((varA+epsilon)*(varB+epsilon))
	return numeric.SafeDiv(cov, denom)
}
