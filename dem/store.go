package dem

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
)

// ErrTileNotFound is returned when no file exists for a tile the swath
// touches. It is a resource error and fatal for the scene unless sea-level
// fill is enabled.
var ErrTileNotFound = errors.New("elevation tile not found")

// EventType indicates what happened to a tile.
type EventType int

const (
	EventTileLoaded EventType = iota
	EventTileMissing
)

// Event is emitted to subscribers after each load attempt.
type Event struct {
	Type     EventType
	Name     string
	Object   string
	Duration time.Duration
}

// tileExtensions are tried in order for every tile name.
var tileExtensions = []string{".tif", ".hgt", ".zip"}

// TileStore is a thread-safe cache of decoded tiles read through a
// FileAccess. Missing tiles are remembered so a scene never looks for the
// same file twice.
type TileStore struct {
	mu sync.RWMutex

	fa     fileaccess.FileAccess
	root   string
	prefix string

	tiles   map[string]*Tile
	missing map[string]bool

	subs []func(Event)
}

// NewTileStore constructs an empty store over tiles under root.
func NewTileStore(fa fileaccess.FileAccess, root string) *TileStore {
	return &TileStore{
		fa:      fa,
		root:    root,
		tiles:   make(map[string]*Tile),
		missing: make(map[string]bool),
	}
}

// NewTileStoreAt reads tiles from a parsed location, so tiles may sit under
// a key prefix in a bucket.
func NewTileStoreAt(fa fileaccess.FileAccess, loc fileaccess.Location) *TileStore {
	s := NewTileStore(fa, loc.Root)
	s.prefix = loc.Prefix
	return s
}

// NewLocalTileStore reads tiles from a local directory.
func NewLocalTileStore(dir string) *TileStore {
	return NewTileStore(&fileaccess.FSAccess{}, dir)
}

// Add inserts a decoded tile, replacing any cached copy.
func (s *TileStore) Add(t *Tile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[t.Name()] = t
	delete(s.missing, t.Name())
}

// Cached returns the tile if it has been loaded, or nil.
func (s *TileStore) Cached(lat, lon int) *Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiles[TileName(lat, lon)]
}

// Len returns the number of cached tiles.
func (s *TileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiles)
}

// Tile returns the tile with south-west corner (lat, lon), loading it on
// first use. Concurrent callers may decode the same tile twice; the last
// one wins and both copies are identical.
func (s *TileStore) Tile(lat, lon int) (*Tile, error) {
	name := TileName(lat, lon)

	s.mu.RLock()
	t, ok := s.tiles[name]
	missing := s.missing[name]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}
	if missing {
		return nil, fmt.Errorf("tile %s: %w", name, ErrTileNotFound)
	}

	start := time.Now()
	t, object, err := s.load(lat, lon)

	s.mu.Lock()
	ev := Event{Name: name, Object: object, Duration: time.Since(start)}
	switch {
	case err == nil:
		s.tiles[name] = t
		ev.Type = EventTileLoaded
	case errors.Is(err, ErrTileNotFound):
		s.missing[name] = true
		ev.Type = EventTileMissing
	}
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	if err == nil || errors.Is(err, ErrTileNotFound) {
		for _, sub := range subs {
			sub(ev)
		}
	}
	return t, err
}

func (s *TileStore) load(lat, lon int) (*Tile, string, error) {
	name := TileName(lat, lon)
	for _, ext := range tileExtensions {
		object := name + ext
		data, err := s.fa.ReadObject(s.root, path.Join(s.prefix, object))
		if err != nil {
			if s.fa.IsNotFoundError(err) {
				continue
			}
			return nil, object, fmt.Errorf("read %s: %w", object, err)
		}
		t, err := decode(lat, lon, object, data)
		return t, object, err
	}
	return nil, "", fmt.Errorf("tile %s under %s: %w", name, s.root, ErrTileNotFound)
}

func decode(lat, lon int, object string, data []byte) (*Tile, error) {
	switch strings.ToLower(path.Ext(object)) {
	case ".hgt":
		return DecodeHGT(lat, lon, data)
	case ".tif", ".tiff":
		return DecodeTIFF(lat, lon, bytes.NewReader(data))
	case ".zip":
		return decodeZip(lat, lon, object, data)
	}
	return nil, fmt.Errorf("%s: unknown tile format", object)
}

// decodeZip reads the first tile-shaped entry of a zipped tile.
func decodeZip(lat, lon int, object string, data []byte) (*Tile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", object, err)
	}
	for _, f := range zr.File {
		ext := strings.ToLower(path.Ext(f.Name))
		if ext != ".hgt" && ext != ".tif" && ext != ".tiff" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", object, err)
		}
		inner, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", object, err)
		}
		return decode(lat, lon, f.Name, inner)
	}
	return nil, fmt.Errorf("%s holds no elevation tile: %w", object, ErrTileNotFound)
}

// Subscribe registers a callback for tile events. It returns an unsubscribe
// function.
func (s *TileStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < 0 || idx >= len(s.subs) {
			return
		}
		s.subs = append(s.subs[:idx], s.subs[idx+1:]...)
		idx = -1
	}
}

func isNotFound(err error) bool { return errors.Is(err, ErrTileNotFound) }
