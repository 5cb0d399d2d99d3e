package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/query"
)

// Seed inserts demo queries with tweets scattered around each center when
// the store is empty. It returns the number of queries created.
func (s *Store) Seed(ctx context.Context, now time.Time) (int, error) {
	existing, err := s.ActiveQueries(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	demos := []struct {
		name     string
		center   geo.GeoPoint
		keywords []string
	}{
		{"Bay Area storms", geo.GeoPoint{Longitude: -122.4, Latitude: 37.8}, []string{"storm", "flood", "rain"}},
		{"Oakland outages", geo.GeoPoint{Longitude: -122.27, Latitude: 37.8}, []string{"outage", "power"}},
	}

	for qi, d := range demos {
		q, err := s.CreateQuery(ctx, query.Query{
			Name:      d.name,
			Location:  d.center,
			StartDate: now.Add(-72 * time.Hour),
			EndDate:   now.Add(72 * time.Hour),
			Keywords:  d.keywords,
			Frequency: 15,
			MaxTweets: 100,
		})
		if err != nil {
			return qi, err
		}

		tweets := make([]query.Tweet, 0, 24)
		for i := 0; i < 24; i++ {
			// Deterministic spiral so the demo map looks the same each run.
			angle := float64(i) * 2.4
			r := 0.004 * math.Sqrt(float64(i+1))
			likes := (i*7 + qi*3) % 40
			rts := (i * 3) % 15
			tweets = append(tweets, query.Tweet{
				ID:                fmt.Sprintf("%s-%02d", q.ID[:8], i),
				QueryID:           q.ID,
				Likes:             likes,
				Retweets:          rts,
				Replies:           i % 5,
				Content:           fmt.Sprintf("%s update #%d", d.keywords[i%len(d.keywords)], i+1),
				Location:          geo.Normalize(d.center.Longitude+r*math.Cos(angle), d.center.Latitude+r*math.Sin(angle)),
				CreatedAt:         now.Add(-time.Duration(i) * time.Hour),
				KeywordCount:      1 + i%len(d.keywords),
				InteractionScore:  math.Round(float64(likes+2*rts)/10*100) / 100,
				RelatabilityScore: math.Round(float64(i%10)/10*100) / 100,
			})
		}
		if err := s.AddTweets(ctx, tweets...); err != nil {
			return qi, err
		}
	}

	s.log.Info().Int("queries", len(demos)).Msg("seeded demo data")
	return len(demos), nil
}
