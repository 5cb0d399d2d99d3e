// Package tiles exports scored features as gzipped Mapbox vector tiles in
// a PMTiles v3 archive, for hosting the tweet layer on a static CDN.
package tiles

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
)

// MaxZoom is the deepest zoom level Build generates.
const MaxZoom = 14

// Options controls tile generation.
type Options struct {
	Layer         string
	ScoreProperty string
	MinZoom       int
	MaxZoom       int
}

func (o Options) withDefaults() Options {
	if o.Layer == "" {
		o.Layer = "tweets"
	}
	if o.ScoreProperty == "" {
		o.ScoreProperty = geo.DefaultScoreProperty
	}
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 || o.MaxZoom > MaxZoom {
		o.MaxZoom = MaxZoom
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	return o
}

// Tile is one encoded vector tile.
type Tile struct {
	Key  maptile.Tile
	ID   uint64
	Data []byte
}

// Build encodes fc for every zoom in the configured range. Tiles come back
// sorted by archive tile id; tiles without features are not produced.
func Build(fc geo.FeatureCollection, opts Options) ([]Tile, error) {
	opts = opts.withDefaults()

	var out []Tile
	for z := opts.MinZoom; z <= opts.MaxZoom; z++ {
		groups := make(map[maptile.Tile][]geo.ScoredFeature)
		for _, f := range fc {
			t := maptile.At(f.Location.Point(), maptile.Zoom(z))
			groups[t] = append(groups[t], f)
		}
		for t, fs := range groups {
			data, err := encode(t, fs, opts)
			if err != nil {
				return nil, fmt.Errorf("tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
			}
			out = append(out, Tile{Key: t, ID: tileID(uint8(t.Z), t.X, t.Y), Data: data})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func encode(t maptile.Tile, fs []geo.ScoredFeature, opts Options) ([]byte, error) {
	gc := geojson.NewFeatureCollection()
	for _, sf := range fs {
		f := geojson.NewFeature(sf.Location.Point())
		f.Properties["id"] = sf.ID
		f.Properties[opts.ScoreProperty] = sf.Score
		gc.Append(f)
	}

	layer := mvt.NewLayer(opts.Layer, gc)
	layer.ProjectToTile(t)
	return mvt.MarshalGzipped(mvt.Layers{layer})
}
