package remote

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/query"
)

// envelope is the collection API response wrapper. Status mirrors the HTTP
// status and must be 200 for the payload to be used.
type envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message,omitempty"`
	Queries []wireQuery `json:"queries,omitempty"`
	Query   *wireQuery  `json:"query,omitempty"`
	Tweets  []wireTweet `json:"tweets,omitempty"`
}

type wireQuery struct {
	ID        string       `json:"_id,omitempty"`
	Name      string       `json:"name"`
	Location  wireLocation `json:"location"`
	StartDate time.Time    `json:"startDate"`
	EndDate   time.Time    `json:"endDate"`
	Keywords  []string     `json:"keywords"`
	Frequency int          `json:"frequency"`
	MaxTweets int          `json:"maxTweets"`
}

type wireTweet struct {
	ID       string        `json:"id"`
	QueryID  string        `json:"qId"`
	Likes    int           `json:"likes"`
	Retweets int           `json:"rt"`
	Replies  int           `json:"rp"`
	Media    []query.Media `json:"media"`
	Date     time.Time     `json:"date"`
	Location wireLocation  `json:"loc"`
	Content  string        `json:"content"`
	Keywords int           `json:"kc"`
	Interact float64       `json:"is"`
	Relate   float64       `json:"rs"`
}

func (w wireQuery) query() query.Query {
	return query.Query{
		ID:        w.ID,
		Name:      w.Name,
		Location:  geo.GeoPoint(w.Location),
		StartDate: w.StartDate,
		EndDate:   w.EndDate,
		Keywords:  w.Keywords,
		Frequency: w.Frequency,
		MaxTweets: w.MaxTweets,
	}
}

func toWireQuery(q query.Query) wireQuery {
	return wireQuery{
		ID:        q.ID,
		Name:      q.Name,
		Location:  wireLocation(q.Location),
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Keywords:  q.Keywords,
		Frequency: q.Frequency,
		MaxTweets: q.MaxTweets,
	}
}

func (w wireTweet) tweet() query.Tweet {
	return query.Tweet{
		ID:                w.ID,
		QueryID:           w.QueryID,
		Likes:             w.Likes,
		Retweets:          w.Retweets,
		Replies:           w.Replies,
		Content:           w.Content,
		Media:             w.Media,
		Location:          geo.GeoPoint(w.Location),
		CreatedAt:         w.Date,
		KeywordCount:      w.Keywords,
		InteractionScore:  w.Interact,
		RelatabilityScore: w.Relate,
	}
}

// wireLocation accepts the location shapes the collection API has used:
// a GeoJSON point, a [lng, lat] pair, or an object with lng/lat or
// longitude/latitude keys. It is always written as a GeoJSON point.
type wireLocation geo.GeoPoint

func (l wireLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
	}{"Point", [2]float64{l.Longitude, l.Latitude}})
}

func (l *wireLocation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = wireLocation{}
		return nil
	}

	if data[0] == '[' {
		var pair []float64
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("location: %w", err)
		}
		return l.set(pair)
	}

	var obj struct {
		Coordinates []float64 `json:"coordinates"`
		Lng         *float64  `json:"lng"`
		Lat         *float64  `json:"lat"`
		Longitude   *float64  `json:"longitude"`
		Latitude    *float64  `json:"latitude"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	switch {
	case obj.Coordinates != nil:
		return l.set(obj.Coordinates)
	case obj.Lng != nil && obj.Lat != nil:
		*l = wireLocation{Longitude: *obj.Lng, Latitude: *obj.Lat}
	case obj.Longitude != nil && obj.Latitude != nil:
		*l = wireLocation{Longitude: *obj.Longitude, Latitude: *obj.Latitude}
	default:
		return fmt.Errorf("location: unrecognized shape %s", data)
	}
	return nil
}

func (l *wireLocation) set(pair []float64) error {
	if len(pair) < 2 {
		return fmt.Errorf("location: want [lng, lat], got %d values", len(pair))
	}
	*l = wireLocation{Longitude: pair[0], Latitude: pair[1]}
	return nil
}
