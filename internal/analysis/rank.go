package analysis

import (
	"sort"

	"decay-fit/internal/model"
)

type RankedRecord struct {
	Rank int
	model.BatchRecord
}

// RankByRSquared sorts records by fit quality, best first. Ties keep the
// table order, so the ranking is deterministic.
func RankByRSquared(table model.ResultTable) []RankedRecord {
	out := make([]RankedRecord, 0, len(table.Records))
	for _, r := range table.Records {
		out = append(out, RankedRecord{BatchRecord: r})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.RSquared > out[j].Result.RSquared
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Below returns the records whose R² is under min, in table order.
func Below(table model.ResultTable, min float64) []model.BatchRecord {
	var out []model.BatchRecord
	for _, r := range table.Records {
		if r.Result.RSquared < min {
			out = append(out, r)
		}
	}
	return out
}
