package biometric

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"math/rand"
)

// MatchThreshold is the minimum score accepted as a verified match.
const MatchThreshold = 85

// jitterRange is the half-width of the uniform perturbation added to non-exact scores.
const jitterRange = 10.0

// Digest returns the hex SHA-256 of the raw sample. Deterministic and one-way.
func Digest(rawSample string) string {
	sum := sha256.Sum256([]byte(rawSample))
	return hex.EncodeToString(sum[:])
}

// MatchScore simulates a 0-100 similarity between two template hashes.
//
// Identical hashes score 100. Otherwise the score is the share of equal character
// positions over the shorter hash, scaled to 100, plus uniform jitter in [-10, +10],
// clamped to [0, 100].
//
// This is a simulation, not a fuzzy matcher: SHA-256 destroys locality, so two
// different samples land around 6 (1/16 positional agreement) and only the exact path
// ever passes MatchThreshold in practice.
func MatchScore(storedHash, providedHash string, rng *rand.Rand) int {
	if storedHash == providedHash {
		return 100
	}

	n := len(storedHash)
	if len(providedHash) < n {
		n = len(providedHash)
	}

	base := 0.0
	if n > 0 {
		same := 0
		for i := 0; i < n; i++ {
			if storedHash[i] == providedHash[i] {
				same++
			}
		}
		base = float64(same) / float64(n) * 100
	}

	jitter := 0.0
	if rng != nil {
		jitter = (rng.Float64()*2 - 1) * jitterRange
	}

	score := math.Round(base + jitter)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

// IsMatch applies the fixed acceptance threshold.
func IsMatch(score int) bool { return score >= MatchThreshold }
