package recommendations

import "github.com/FACorreiaa/go-poi-recommendations/internal/types"

// CandidateKey is the identity of a place: normalized name and address.
func CandidateKey(name, address string) string {
	return types.NormalizeText(name) + "|" + types.NormalizeText(address)
}

// Dedupe drops repeated places from a bucket, keeping the first occurrence
// and the relative order of survivors.
func Dedupe(bucket []types.PlaceCandidate) []types.PlaceCandidate {
	seen := make(map[string]struct{}, len(bucket))
	out := make([]types.PlaceCandidate, 0, len(bucket))
	for _, c := range bucket {
		k := CandidateKey(c.RawName, c.RawAddress)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// DedupeAll applies Dedupe to every bucket.
func DedupeAll(buckets map[types.Category][]types.PlaceCandidate) map[types.Category][]types.PlaceCandidate {
	out := make(map[types.Category][]types.PlaceCandidate, len(buckets))
	for cat, b := range buckets {
		out[cat] = Dedupe(b)
	}
	return out
}
