// Package query defines collection query and tweet records.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
)

// Query is a geo-bounded, keyword-filtered collection task.
type Query struct {
	ID        string       `json:"id,omitempty" doc:"Query identifier" example:"62447e7c2f2f0a5c1c3b9d11"`
	Name      string       `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Bay Area floods"`
	Location  geo.GeoPoint `json:"location" doc:"Collection center"`
	StartDate time.Time    `json:"startDate" doc:"Collection start"`
	EndDate   time.Time    `json:"endDate" doc:"Collection end"`
	Keywords  []string     `json:"keywords" minItems:"1" doc:"Keywords to match"`
	Frequency int          `json:"frequency" minimum:"1" doc:"Collection interval in minutes" example:"15"`
	MaxTweets int          `json:"maxTweets" minimum:"1" doc:"Maximum tweets per collection run" example:"100"`
}

// Validate checks the record before it is sent to the collection API.
func (q Query) Validate() error {
	var errs []error
	if strings.TrimSpace(q.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if err := q.Location.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("location: %w", err))
	}
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		errs = append(errs, errors.New("start and end dates are required"))
	} else if q.EndDate.Before(q.StartDate) {
		errs = append(errs, errors.New("end date is before start date"))
	}
	if len(q.Keywords) == 0 {
		errs = append(errs, errors.New("at least one keyword is required"))
	}
	if q.Frequency < 1 {
		errs = append(errs, errors.New("frequency must be at least 1 minute"))
	}
	if q.MaxTweets < 1 {
		errs = append(errs, errors.New("max tweets must be at least 1"))
	}
	return errors.Join(errs...)
}

// AddKeyword appends v unless it is blank. The input slice is not modified.
func AddKeyword(tags []string, v string) []string {
	v = strings.TrimSpace(v)
	out := append([]string(nil), tags...)
	if v == "" {
		return out
	}
	return append(out, v)
}

// RemoveKeyword returns tags without index i. Out-of-range indexes leave
// the list unchanged.
func RemoveKeyword(tags []string, i int) []string {
	out := make([]string, 0, len(tags))
	for j, t := range tags {
		if j != i {
			out = append(out, t)
		}
	}
	return out
}

// Media is a photo or video attached to a tweet.
type Media struct {
	Type string `json:"type" enum:"photo,video" doc:"Media kind"`
	URL  string `json:"url" doc:"Media URL"`
}

// Tweet is one collected post.
type Tweet struct {
	ID                string       `json:"id" doc:"Tweet id"`
	QueryID           string       `json:"queryId" doc:"Owning query id"`
	Likes             int          `json:"likes"`
	Retweets          int          `json:"retweets"`
	Replies           int          `json:"replies"`
	Content           string       `json:"content"`
	Media             []Media      `json:"media"`
	Location          geo.GeoPoint `json:"location"`
	CreatedAt         time.Time    `json:"createdAt"`
	KeywordCount      int          `json:"keywordCount" doc:"Number of query keywords matched"`
	InteractionScore  float64      `json:"interactionScore"`
	RelatabilityScore float64      `json:"relatabilityScore"`
}

// Link returns the public status URL.
func (t Tweet) Link() string {
	return "https://twitter.com/anyuser/status/" + t.ID
}

// Feature converts the tweet to a map feature scored by interaction.
func (t Tweet) Feature() geo.ScoredFeature {
	score := t.InteractionScore
	if score < 0 {
		score = 0
	}
	return geo.ScoredFeature{ID: t.ID, Location: t.Location, Score: score}
}

// Features converts tweets in order.
func Features(tweets []Tweet) geo.FeatureCollection {
	fc := make(geo.FeatureCollection, len(tweets))
	for i, t := range tweets {
		fc[i] = t.Feature()
	}
	return fc
}
