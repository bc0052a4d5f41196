package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"whispr-service/internal/model"
)

const recommendLimit = 10

// Recommendation is an account followed by Count of the accounts a user follows.
type Recommendation struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
}

// Recommend returns friend-of-friend suggestions for number: accounts followed
// by the accounts number follows, excluding number itself, accounts it already
// follows and locked accounts. Ordered by count, then name, then number.
func (e *Engine) Recommend(ctx context.Context, number string) ([]Recommendation, error) {
	edges, err := e.store.AllEdges(ctx)
	if err != nil {
		return nil, err
	}

	follows := make(map[string]bool)
	for followee, followers := range edges {
		for _, f := range followers {
			if f == number {
				follows[followee] = true
				break
			}
		}
	}

	counts := make(map[string]int)
	for candidate, followers := range edges {
		if candidate == number || follows[candidate] {
			continue
		}
		for _, f := range followers {
			if follows[f] {
				counts[candidate]++
			}
		}
	}

	recs := make([]Recommendation, 0, len(counts))
	for candidate, n := range counts {
		locked, err := e.store.IsLocked(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if locked {
			continue
		}
		recs = append(recs, Recommendation{Number: candidate, Name: e.nameOf(ctx, candidate, ""), Count: n})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Count != recs[j].Count {
			return recs[i].Count > recs[j].Count
		}
		ni, nj := strings.ToLower(recs[i].Name), strings.ToLower(recs[j].Name)
		if ni != nj {
			return ni < nj
		}
		return recs[i].Number < recs[j].Number
	})
	if len(recs) > recommendLimit {
		recs = recs[:recommendLimit]
	}
	return recs, nil
}

func (e *Engine) doRecommend(ctx context.Context, msg *model.Message) (string, error) {
	recs, err := e.Recommend(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "you already follow everyone followed by people you follow", nil
	}
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = fmt.Sprintf("%s is followed by %d people you follow", r.Name, r.Count)
	}
	return strings.Join(lines, "\n"), nil
}
