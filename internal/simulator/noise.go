package simulator

// noise returns a deterministic pseudo-random value in [0,1) for a given
// (tick, sensorIndex) pair, so that scenario runs are bit-reproducible
// (spec.md §4.8). Grounded on the splitmix64-style mixing function used
// by the original implementation's simulator.
func noise(tick uint64, sensorIndex int) float64 {
	x := tick*6364136223846793005 + uint64(sensorIndex)*1442695040888963407
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return float64(x&0x7FFFFFFF) / float64(0x80000000)
}
