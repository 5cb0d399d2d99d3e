package humastar

import (
	"testing"
	"time"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"name":"floods","lng":"-122.5","lat":37.7,"freq":15,"keywords":["rain",3,"flood"],"ok":true,"start":"2022-03-01"}`))
	if err != nil {
		t.Fatalf("ParseSignals: %v", err)
	}
	if s.String("name") != "floods" || s.String("missing") != "" {
		t.Fatalf("String: %q", s.String("name"))
	}
	if s.Float("lng") != -122.5 || s.Float("lat") != 37.7 {
		t.Fatalf("Float lng=%v lat=%v", s.Float("lng"), s.Float("lat"))
	}
	if s.Int("freq") != 15 {
		t.Fatalf("Int=%d", s.Int("freq"))
	}
	if _, ok := s.Number("name"); ok {
		t.Fatal("non-numeric string reported as number")
	}
	if got := s.Strings("keywords"); len(got) != 2 || got[1] != "flood" {
		t.Fatalf("Strings=%v", got)
	}
	if !s.Bool("ok") || !s.Has("ok") || s.Has("nope") {
		t.Fatal("Bool/Has")
	}
	start, err := s.Time("start")
	if err != nil || !start.Equal(time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Time=%v err=%v", start, err)
	}
	if _, err := s.Time("missing"); err == nil {
		t.Fatal("missing date accepted")
	}
}

func TestParseSignalsEmptyAndInvalid(t *testing.T) {
	s, err := ParseSignals(nil)
	if err != nil || len(s) != 0 {
		t.Fatalf("empty body: %v %v", s, err)
	}
	in := SignalsInput{RawBody: []byte(`{not json`)}
	if _, err := in.MustParse(); err == nil {
		t.Fatal("invalid body accepted")
	}
}

func TestActionsFor(t *testing.T) {
	got := ActionsFor("q1", []ActionDef{
		{Rel: "edit", Pattern: "/api/v1/queries/%s", Method: "PUT", Title: "Edit query"},
		{Rel: "tweets", Pattern: "/api/v1/queries/%s/tweets"},
	})
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if h := got[0].LinkHeader(); h != `</api/v1/queries/q1>; rel="edit"; method="PUT"; title="Edit query"` {
		t.Fatalf("header=%s", h)
	}
	if h := got[1].LinkHeader(); h != `</api/v1/queries/q1/tweets>; rel="tweets"` {
		t.Fatalf("header=%s", h)
	}
}
