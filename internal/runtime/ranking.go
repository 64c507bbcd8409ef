package runtime

import (
	"sort"

	"brainstorm/internal/model"
)

// ComputeRanking orders participants by submitted-word count, highest first.
// Ties keep the order in which participants first appear in order.
func ComputeRanking(order []string, counts map[string]int) []model.RankingEntry {
	ranking := make([]model.RankingEntry, 0, len(order))
	for _, id := range order {
		ranking = append(ranking, model.RankingEntry{
			ParticipantID: id,
			Count:         counts[id],
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Count > ranking[j].Count
	})
	return ranking
}
