// Package zones resolves which Atlas 14 zones a project area touches.
package zones

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
)

// CodeField is the zone-index attribute holding the Atlas 14 zone code.
const CodeField = "NOAA14_cd"

// Feature is one polygon of a layer with its zone code (empty for project areas).
type Feature struct {
	geom.Polygonal
	Code string
}

// Layer is a set of polygons in one spatial reference.
type Layer struct {
	Name     string
	SR       *proj.SR
	Features []Feature
}

// ShapefileReader loads polygon layers from ESRI shapefiles.
type ShapefileReader struct {
	// AllowMissingSHX tolerates a missing .shx index; nothing is regenerated.
	// Features are decoded sequentially from the .shp, so the index is not needed.
	AllowMissingSHX bool
}

// ReadZoneIndex loads the zone-index layer with codes from CodeField.
func (r ShapefileReader) ReadZoneIndex(path string) (*Layer, error) {
	return r.read(path, CodeField)
}

// ReadProjectArea loads the project-area layer.
func (r ShapefileReader) ReadProjectArea(path string) (*Layer, error) {
	return r.read(path, "")
}

func (r ShapefileReader) read(path, codeField string) (*Layer, error) {
	if err := r.checkComponents(path); err != nil {
		return nil, err
	}

	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrInvalidInput, filepath.Base(path), err)
	}
	defer dec.Close()

	sr, err := dec.SR()
	if err != nil {
		return nil, fmt.Errorf("%w: %s spatial reference: %v", domain.ErrInvalidInput, filepath.Base(path), err)
	}

	layer := &Layer{Name: filepath.Base(path), SR: sr}
	var fieldNames []string
	if codeField != "" {
		fieldNames = []string{codeField}
	}
	for {
		g, fields, more := dec.DecodeRowFields(fieldNames...)
		if !more {
			break
		}
		poly, ok := g.(geom.Polygonal)
		if !ok || poly == nil {
			return nil, fmt.Errorf("%w: %s feature %d is %T, want polygon",
				domain.ErrInvalidInput, layer.Name, len(layer.Features), g)
		}
		f := Feature{Polygonal: poly}
		if codeField != "" {
			code, ok := fields[codeField]
			if !ok {
				return nil, fmt.Errorf("%w: %s missing attribute column %s", domain.ErrInvalidInput, layer.Name, codeField)
			}
			f.Code = strings.TrimSpace(code)
		}
		layer.Features = append(layer.Features, f)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidInput, layer.Name, err)
	}
	if len(layer.Features) == 0 {
		return nil, fmt.Errorf("%w: %s has no features", domain.ErrInvalidInput, layer.Name)
	}
	return layer, nil
}

// checkComponents verifies the sidecar files a shapefile needs.
func (r ShapefileReader) checkComponents(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		return fmt.Errorf("%w: %s is not a .shp file", domain.ErrInvalidInput, filepath.Base(path))
	}
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	required := []string{".shp", ".dbf", ".prj"}
	if !r.AllowMissingSHX {
		required = append(required, ".shx")
	}
	for _, ext := range required {
		if _, err := os.Stat(stem + ext); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: missing %s file for %s", domain.ErrInvalidInput, ext, filepath.Base(path))
			}
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	}
	return nil
}
