package zones

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
)

// NAD83 is the reference system of the Atlas 14 grids and zone index (EPSG:4269).
const NAD83 = "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs"

// Resolver intersects a project area with the zone index.
type Resolver struct {
	target *proj.SR
	logger *slog.Logger
}

// NewResolver creates a Resolver that standardizes both layers to NAD83.
func NewResolver(logger *slog.Logger) (*Resolver, error) {
	sr, err := proj.Parse(NAD83)
	if err != nil {
		return nil, fmt.Errorf("parse NAD83: %w", err)
	}
	return &Resolver{target: sr, logger: logger}, nil
}

// Resolve returns the sorted, distinct codes of zones whose polygons
// intersect the union of the project-area polygons. The legacy Atlas 2
// region is never returned. An empty result is not an error.
func (r *Resolver) Resolve(index, area *Layer) ([]string, error) {
	index, err := r.standardize(index)
	if err != nil {
		return nil, err
	}
	area, err = r.standardize(area)
	if err != nil {
		return nil, err
	}

	union, err := unionOf(area)
	if err != nil {
		return nil, err
	}

	tree := rtree.NewTree(25, 50)
	for i := range index.Features {
		tree.Insert(&index.Features[i])
	}

	seen := make(map[string]bool)
	for _, g := range tree.SearchIntersect(union.Bounds()) {
		f := g.(*Feature)
		if f.Code == domain.LegacyZone || f.Code == "" || seen[f.Code] {
			continue
		}
		if intersects(f.Polygonal, union) {
			seen[f.Code] = true
		}
	}

	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	r.logger.Info("found intersecting zones", "zones", codes)
	return codes, nil
}

// standardize reprojects a layer to NAD83 unless it is already there.
func (r *Resolver) standardize(l *Layer) (*Layer, error) {
	if l == nil || len(l.Features) == 0 {
		return nil, fmt.Errorf("%w: empty layer", domain.ErrInvalidInput)
	}
	if l.SR == nil {
		return nil, fmt.Errorf("%w: %s has no spatial reference", domain.ErrInvalidInput, l.Name)
	}
	if reflect.DeepEqual(l.SR, r.target) {
		r.logger.Debug("layer already in target crs", "layer", l.Name)
		return l, nil
	}

	r.logger.Info("converting layer to NAD83", "layer", l.Name)
	trans, err := l.SR.NewTransform(r.target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s transform: %v", domain.ErrInvalidInput, l.Name, err)
	}
	out := &Layer{Name: l.Name, SR: r.target, Features: make([]Feature, len(l.Features))}
	for i, f := range l.Features {
		g, err := f.Polygonal.Transform(trans)
		if err != nil {
			return nil, fmt.Errorf("%w: %s feature %d: %v", domain.ErrInvalidInput, l.Name, i, err)
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("%w: %s feature %d is not polygonal after transform", domain.ErrInvalidInput, l.Name, i)
		}
		out.Features[i] = Feature{Polygonal: poly, Code: f.Code}
	}
	return out, nil
}

func unionOf(l *Layer) (geom.Polygonal, error) {
	var u geom.Polygonal
	for _, f := range l.Features {
		if f.Polygonal == nil {
			return nil, fmt.Errorf("%w: %s has an empty geometry", domain.ErrInvalidInput, l.Name)
		}
		if u == nil {
			u = f.Polygonal
			continue
		}
		u = u.Union(f.Polygonal)
	}
	return u, nil
}

// Finder loads the zone index and project area from shapefiles and resolves them.
type Finder struct {
	Reader   ShapefileReader
	Resolver *Resolver
}

// FindZones returns the zone codes intersecting the project area.
func (f *Finder) FindZones(indexPath, areaPath string) ([]string, error) {
	index, err := f.Reader.ReadZoneIndex(indexPath)
	if err != nil {
		return nil, err
	}
	area, err := f.Reader.ReadProjectArea(areaPath)
	if err != nil {
		return nil, err
	}
	return f.Resolver.Resolve(index, area)
}
