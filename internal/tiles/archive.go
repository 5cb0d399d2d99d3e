package tiles

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
)

// PMTiles v3 field values used by the writer.
const (
	compressionGzip uint8 = 2
	tileTypeMVT     uint8 = 1

	headerLen = 127
)

// header is the fixed-size PMTiles v3 header.
type header struct {
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	MinZoom             uint8
	MaxZoom             uint8
	Bound               orb.Bound
	CenterZoom          uint8
	Center              orb.Point
}

type entry struct {
	TileID uint64
	Offset uint64
	Length uint32
}

// tileID converts z/x/y to the Hilbert tile id used for archive ordering.
func tileID(z uint8, x, y uint32) uint64 {
	var acc uint64 = (1<<(z*2) - 1) / 3
	n := uint32(z) - 1
	for s := uint32(1) << n; s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		acc += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return acc
}

func rotate(n, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx != 0 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}

func e7(v float64) uint32 { return uint32(int32(v * 1e7)) }

func fromE7(v uint32) float64 { return float64(int32(v)) / 1e7 }

func (h header) marshal() []byte {
	b := make([]byte, headerLen)
	copy(b[0:7], "PMTiles")
	b[7] = 3
	le := binary.LittleEndian
	le.PutUint64(b[8:], h.RootOffset)
	le.PutUint64(b[16:], h.RootLength)
	le.PutUint64(b[24:], h.MetadataOffset)
	le.PutUint64(b[32:], h.MetadataLength)
	// 40..56: no leaf directories
	le.PutUint64(b[56:], h.TileDataOffset)
	le.PutUint64(b[64:], h.TileDataLength)
	le.PutUint64(b[72:], h.AddressedTilesCount)
	le.PutUint64(b[80:], h.TileEntriesCount)
	le.PutUint64(b[88:], h.TileContentsCount)
	b[96] = 1 // clustered
	b[97] = compressionGzip
	b[98] = compressionGzip
	b[99] = tileTypeMVT
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], e7(h.Bound.Min.Lon()))
	le.PutUint32(b[106:], e7(h.Bound.Min.Lat()))
	le.PutUint32(b[110:], e7(h.Bound.Max.Lon()))
	le.PutUint32(b[114:], e7(h.Bound.Max.Lat()))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], e7(h.Center.Lon()))
	le.PutUint32(b[123:], e7(h.Center.Lat()))
	return b
}

func readHeader(d []byte) (header, error) {
	var h header
	if len(d) < headerLen {
		return h, errors.New("pmtiles: buffer too small for header")
	}
	if string(d[0:7]) != "PMTiles" || d[7] != 3 {
		return h, errors.New("pmtiles: not a v3 archive")
	}
	le := binary.LittleEndian
	h.RootOffset = le.Uint64(d[8:])
	h.RootLength = le.Uint64(d[16:])
	h.MetadataOffset = le.Uint64(d[24:])
	h.MetadataLength = le.Uint64(d[32:])
	h.TileDataOffset = le.Uint64(d[56:])
	h.TileDataLength = le.Uint64(d[64:])
	h.AddressedTilesCount = le.Uint64(d[72:])
	h.TileEntriesCount = le.Uint64(d[80:])
	h.TileContentsCount = le.Uint64(d[88:])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.Bound = orb.Bound{
		Min: orb.Point{fromE7(le.Uint32(d[102:])), fromE7(le.Uint32(d[106:]))},
		Max: orb.Point{fromE7(le.Uint32(d[110:])), fromE7(le.Uint32(d[114:]))},
	}
	h.CenterZoom = d[118]
	h.Center = orb.Point{fromE7(le.Uint32(d[119:])), fromE7(le.Uint32(d[123:]))}
	return h, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var b bytes.Buffer
	w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// marshalDirectory encodes entries as a gzipped root directory. Every entry
// has a run length of one.
func marshalDirectory(entries []entry) ([]byte, error) {
	var raw bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		raw.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	var last uint64
	for _, e := range entries {
		put(e.TileID - last)
		last = e.TileID
	}
	for range entries {
		put(1)
	}
	for _, e := range entries {
		put(uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			put(0)
		} else {
			put(e.Offset + 1)
		}
	}
	return gzipBytes(raw.Bytes())
}

func marshalMetadata(opts Options) ([]byte, error) {
	meta := map[string]any{
		"name":        opts.Layer,
		"format":      "pbf",
		"compression": "gzip",
		"minzoom":     opts.MinZoom,
		"maxzoom":     opts.MaxZoom,
		"vector_layers": []map[string]any{{
			"id":      opts.Layer,
			"minzoom": opts.MinZoom,
			"maxzoom": opts.MaxZoom,
			"fields":  map[string]string{"id": "String", opts.ScoreProperty: "Number"},
		}},
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return gzipBytes(b)
}

// WriteArchive writes tiles as a single-directory PMTiles v3 archive.
// Tiles must be sorted by tile id, as Build returns them.
func WriteArchive(w io.Writer, tiles []Tile, bound orb.Bound, opts Options) error {
	if len(tiles) == 0 {
		return errors.New("pmtiles: no tiles to write")
	}
	opts = opts.withDefaults()

	entries := make([]entry, 0, len(tiles))
	var data bytes.Buffer
	for _, t := range tiles {
		entries = append(entries, entry{TileID: t.ID, Offset: uint64(data.Len()), Length: uint32(len(t.Data))})
		data.Write(t.Data)
	}

	dir, err := marshalDirectory(entries)
	if err != nil {
		return err
	}
	meta, err := marshalMetadata(opts)
	if err != nil {
		return err
	}

	h := header{
		RootOffset:          headerLen,
		RootLength:          uint64(len(dir)),
		MetadataOffset:      headerLen + uint64(len(dir)),
		MetadataLength:      uint64(len(meta)),
		TileDataOffset:      headerLen + uint64(len(dir)) + uint64(len(meta)),
		TileDataLength:      uint64(data.Len()),
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		MinZoom:             uint8(opts.MinZoom),
		MaxZoom:             uint8(opts.MaxZoom),
		Bound:               bound,
		CenterZoom:          uint8(opts.MinZoom),
		Center:              bound.Center(),
	}

	for _, part := range [][]byte{h.marshal(), dir, meta, data.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}
