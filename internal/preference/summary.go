package preference

import (
	"fmt"
	"sort"
	"strings"
)

// Summary is the ranked, human-readable view of a profile that gets cited in prompts.
type Summary struct {
	Artists  []string
	Genres   []string
	Eras     []string
	Energy   []string
	Themes   []string
	Disliked []string
}

func (s Summary) Empty() bool {
	return len(s.Artists) == 0 && len(s.Genres) == 0 && len(s.Eras) == 0 &&
		len(s.Energy) == 0 && len(s.Themes) == 0 && len(s.Disliked) == 0
}

// Summarize keeps the top 5 artists with a liked track, top 3 genres, every era, the top 2
// energy levels and the top 5 comment themes.
func (p *Profile) Summarize() Summary {
	var sum Summary

	var liked []Ranked
	for _, r := range Rank(p.Artists) {
		if r.IsLiked {
			liked = append(liked, r)
		}
	}
	for _, r := range top(liked, 5) {
		songs := "songs: " + strings.Join(limit(r.Support, 3), ", ")
		if len(r.Recent) > 0 {
			songs = "recent songs: " + strings.Join(limit(r.Recent, 3), ", ")
		}
		sum.Artists = append(sum.Artists, fmt.Sprintf("%s (liked %.1f times, %s)", r.Key, r.Positive, songs))
	}

	for _, r := range top(Rank(p.Genres), 3) {
		sum.Genres = append(sum.Genres, fmt.Sprintf("%s (liked %.1f times, artists: %s)", r.Key, r.Positive, strings.Join(limit(r.Support, 3), ", ")))
	}

	for _, r := range Rank(p.Eras) {
		sum.Eras = append(sum.Eras, fmt.Sprintf("%ss (%d songs)", r.Key, r.Count))
	}

	for _, r := range top(Rank(p.Energy), 2) {
		sum.Energy = append(sum.Energy, fmt.Sprintf("energy level %s (%d songs)", r.Key, r.Count))
	}

	type theme struct {
		word string
		*Keyword
	}
	themes := make([]theme, 0, len(p.Keywords))
	for w, k := range p.Keywords {
		themes = append(themes, theme{w, k})
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Weight != themes[j].Weight {
			return themes[i].Weight > themes[j].Weight
		}
		return themes[i].word < themes[j].word
	})
	for i, t := range themes {
		if i == 5 {
			break
		}
		sum.Themes = append(sum.Themes, fmt.Sprintf("%s (mentioned %d times)", t.word, t.Count))
	}

	sum.Disliked = append(sum.Disliked, p.Disliked...)
	return sum
}

func limit(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
