package retrieval

import (
	"sort"

	"github.com/brunobiangulo/faultgraph/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// fuseRecords combines graph-routed records and full-text hits with
// Reciprocal Rank Fusion: each list is ranked independently, then
// score = sum(weight_i / (k + rank_i)). Records found by both methods rank
// above records found by one.
func fuseRecords(
	graphRecords []store.Record, ftsResults []store.RecordResult,
	weightGraph, weightFTS float64,
	maxResults int,
) []store.RecordResult {
	type fusedEntry struct {
		record store.Record
		score  float64
	}

	fused := make(map[string]*fusedEntry)
	var order []string

	add := func(code string, record store.Record, contribution float64) {
		entry, ok := fused[code]
		if !ok {
			entry = &fusedEntry{record: record}
			fused[code] = entry
			order = append(order, code)
		}
		entry.score += contribution
	}

	for rank, r := range graphRecords {
		add(r.AccidentCode, r, weightGraph/float64(rrfK+rank+1))
	}
	for rank, r := range ftsResults {
		add(r.AccidentCode, r.Record, weightFTS/float64(rrfK+rank+1))
	}

	// Stable sort over first-seen order keeps ties deterministic.
	sort.SliceStable(order, func(i, j int) bool {
		return fused[order[i]].score > fused[order[j]].score
	})

	if maxResults > 0 && len(order) > maxResults {
		order = order[:maxResults]
	}

	results := make([]store.RecordResult, len(order))
	for i, code := range order {
		entry := fused[code]
		results[i] = store.RecordResult{Record: entry.record, Score: entry.score}
	}
	return results
}
