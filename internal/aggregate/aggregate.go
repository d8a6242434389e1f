// Package aggregate derives reporting views from conformed rows. Every
// function is stateless and recomputable from scratch, so the outputs never
// need their own persistence.
package aggregate

import (
	"sort"
	"time"

	"medallion/pkg/models"
)

// GenreStats is the per-genre rollup. A title with several genres counts
// once toward each of them.
type GenreStats struct {
	Genre         string
	Titles        int
	TotalRevenue  int64
	AverageRating float64
	AverageVotes  float64
}

// YearStats aggregates releases by calendar year of release_date.
type YearStats struct {
	Year          int
	Titles        int
	TotalRevenue  int64
	TotalBudget   int64
	AverageRating float64
}

// RevenueEntry is one row of the revenue ranking.
type RevenueEntry struct {
	BusinessKey int64
	Title       string
	Revenue     int64
}

// ROIEntry reports return on investment for titles with a known budget and
// revenue. ROI is (revenue - budget) / budget.
type ROIEntry struct {
	BusinessKey int64
	Title       string
	Budget      int64
	Revenue     int64
	ROI         float64
}

// GenreRollup computes per-genre title counts, revenue totals, and rating
// averages. Rows without genres are skipped; results are sorted by title
// count descending, then genre name.
func GenreRollup(rows []models.ConformedRow) []GenreStats {
	type acc struct {
		titles  int
		revenue int64
		rating  float64
		rated   int
		votes   float64
		voted   int
	}
	byGenre := make(map[string]*acc)

	for _, row := range rows {
		genres, ok := row.Field("genres").([]string)
		if !ok {
			continue
		}
		for _, genre := range genres {
			a := byGenre[genre]
			if a == nil {
				a = &acc{}
				byGenre[genre] = a
			}
			a.titles++
			if revenue, ok := row.Field("revenue").(int64); ok {
				a.revenue += revenue
			}
			if rating, ok := row.Field("vote_average").(float64); ok {
				a.rating += rating
				a.rated++
			}
			if votes, ok := row.Field("vote_count").(int64); ok {
				a.votes += float64(votes)
				a.voted++
			}
		}
	}

	out := make([]GenreStats, 0, len(byGenre))
	for genre, a := range byGenre {
		stats := GenreStats{Genre: genre, Titles: a.titles, TotalRevenue: a.revenue}
		if a.rated > 0 {
			stats.AverageRating = a.rating / float64(a.rated)
		}
		if a.voted > 0 {
			stats.AverageVotes = a.votes / float64(a.voted)
		}
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Titles != out[j].Titles {
			return out[i].Titles > out[j].Titles
		}
		return out[i].Genre < out[j].Genre
	})
	return out
}

// YearlyRollup aggregates by release year. Rows without a release date are
// skipped; results are ordered by year ascending.
func YearlyRollup(rows []models.ConformedRow) []YearStats {
	type acc struct {
		titles  int
		revenue int64
		budget  int64
		rating  float64
		rated   int
	}
	byYear := make(map[int]*acc)

	for _, row := range rows {
		released, ok := row.Field("release_date").(time.Time)
		if !ok {
			continue
		}
		year := released.Year()
		a := byYear[year]
		if a == nil {
			a = &acc{}
			byYear[year] = a
		}
		a.titles++
		if revenue, ok := row.Field("revenue").(int64); ok {
			a.revenue += revenue
		}
		if budget, ok := row.Field("budget").(int64); ok {
			a.budget += budget
		}
		if rating, ok := row.Field("vote_average").(float64); ok {
			a.rating += rating
			a.rated++
		}
	}

	out := make([]YearStats, 0, len(byYear))
	for year, a := range byYear {
		stats := YearStats{Year: year, Titles: a.titles, TotalRevenue: a.revenue, TotalBudget: a.budget}
		if a.rated > 0 {
			stats.AverageRating = a.rating / float64(a.rated)
		}
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// TopByRevenue ranks titles by revenue descending and returns at most n
// entries. Rows with null or zero revenue are excluded. Ties break on
// business key so the ranking is stable across runs.
func TopByRevenue(rows []models.ConformedRow, n int) []RevenueEntry {
	entries := make([]RevenueEntry, 0, len(rows))
	for _, row := range rows {
		revenue, ok := row.Field("revenue").(int64)
		if !ok || revenue <= 0 {
			continue
		}
		title, _ := row.Field("title").(string)
		entries = append(entries, RevenueEntry{BusinessKey: row.BusinessKey, Title: title, Revenue: revenue})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Revenue != entries[j].Revenue {
			return entries[i].Revenue > entries[j].Revenue
		}
		return entries[i].BusinessKey < entries[j].BusinessKey
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// ROIRanking computes return on investment for every title with a positive
// budget and known revenue, sorted by ROI descending.
func ROIRanking(rows []models.ConformedRow) []ROIEntry {
	entries := make([]ROIEntry, 0, len(rows))
	for _, row := range rows {
		budget, ok := row.Field("budget").(int64)
		if !ok || budget <= 0 {
			continue
		}
		revenue, ok := row.Field("revenue").(int64)
		if !ok {
			continue
		}
		title, _ := row.Field("title").(string)
		entries = append(entries, ROIEntry{
			BusinessKey: row.BusinessKey,
			Title:       title,
			Budget:      budget,
			Revenue:     revenue,
			ROI:         float64(revenue-budget) / float64(budget),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ROI != entries[j].ROI {
			return entries[i].ROI > entries[j].ROI
		}
		return entries[i].BusinessKey < entries[j].BusinessKey
	})
	return entries
}
