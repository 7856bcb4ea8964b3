package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var errHeader = errors.New("invalid ascii grid header")

// Header is the metadata block at the top of an Esri ASCII grid.
type Header struct {
	Rows, Cols int
	Transform  Transform
	HasNoData  bool
	NoData     float64
}

// File is an open ASCII grid. The header is parsed on Open; cell values are
// read by ReadGrid. Callers must Close every File they open.
type File struct {
	path    string
	f       *os.File
	scanner *bufio.Scanner
	pending string // first data token, consumed while looking for header keys
	Header  Header
	CRS     string
}

// Open opens path and parses its header and optional .prj sidecar.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	rf := &File{path: path, f: f, scanner: sc}
	if err := rf.readHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	crs, err := readPRJ(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	rf.CRS = crs
	return rf, nil
}

// Path returns the file path passed to Open.
func (rf *File) Path() string { return rf.path }

// Close releases the underlying file handle.
func (rf *File) Close() error {
	return rf.f.Close()
}

func (rf *File) readHeader() error {
	vals := make(map[string]string)
	for rf.scanner.Scan() {
		tok := rf.scanner.Text()
		key := strings.ToLower(tok)
		if !isHeaderKey(key) {
			rf.pending = tok
			break
		}
		if !rf.scanner.Scan() {
			return fmt.Errorf("%w: missing value for %s", errHeader, tok)
		}
		vals[key] = rf.scanner.Text()
	}
	if err := rf.scanner.Err(); err != nil {
		return err
	}

	var h Header
	var err error
	if h.Cols, err = headerInt(vals, "ncols"); err != nil {
		return err
	}
	if h.Rows, err = headerInt(vals, "nrows"); err != nil {
		return err
	}
	if h.Rows <= 0 || h.Cols <= 0 {
		return fmt.Errorf("%w: non-positive shape %dx%d", errHeader, h.Rows, h.Cols)
	}

	dx, dy, err := cellSize(vals)
	if err != nil {
		return err
	}

	x, xCenter, err := corner(vals, "xllcorner", "xllcenter")
	if err != nil {
		return err
	}
	y, yCenter, err := corner(vals, "yllcorner", "yllcenter")
	if err != nil {
		return err
	}
	if xCenter {
		x -= dx / 2
	}
	if yCenter {
		y -= dy / 2
	}
	h.Transform = Transform{X0: x, Y0: y + float64(h.Rows)*dy, DX: dx, DY: -dy}

	if s, ok := vals["nodata_value"]; ok {
		h.NoData, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: NODATA_value %q", errHeader, s)
		}
		h.HasNoData = true
	}
	rf.Header = h
	return nil
}

// ReadGrid reads all cell values. Grids whose tokens are all integers are
// typed Int32, anything else Float32.
func (rf *File) ReadGrid() (*Grid, error) {
	h := rf.Header
	n := h.Rows * h.Cols
	data := make([]float64, 0, n)
	dt := Int32

	next := func() (string, bool) {
		if rf.pending != "" {
			tok := rf.pending
			rf.pending = ""
			return tok, true
		}
		if rf.scanner.Scan() {
			return rf.scanner.Text(), true
		}
		return "", false
	}

	for len(data) < n {
		tok, ok := next()
		if !ok {
			if err := rf.scanner.Err(); err != nil {
				return nil, fmt.Errorf("%s: %w", filepath.Base(rf.path), err)
			}
			return nil, fmt.Errorf("%s: %w: got %d of %d cells", filepath.Base(rf.path), io.ErrUnexpectedEOF, len(data), n)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: cell %d: %w", filepath.Base(rf.path), len(data), err)
		}
		if dt == Int32 && strings.ContainsAny(tok, ".eEnNiI") {
			dt = Float32
		}
		data = append(data, v)
	}

	return &Grid{
		Rows:      h.Rows,
		Cols:      h.Cols,
		Data:      data,
		Transform: h.Transform,
		CRS:       rf.CRS,
		HasNoData: h.HasNoData,
		NoData:    h.NoData,
		DataType:  dt,
	}, nil
}

// Read opens, reads and closes path.
func Read(path string) (*Grid, error) {
	rf, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rf.Close()
	return rf.ReadGrid()
}

// Write stores g at path, plus a .prj sidecar when g carries a CRS.
func Write(path string, g *Grid) (err error) {
	if len(g.Data) != g.Rows*g.Cols {
		return fmt.Errorf("write raster %s: %d cells for %dx%d grid", filepath.Base(path), len(g.Data), g.Rows, g.Cols)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write raster: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	t := g.Transform
	_, bottom, _, _ := g.Bounds()
	fmt.Fprintf(w, "ncols %d\n", g.Cols)
	fmt.Fprintf(w, "nrows %d\n", g.Rows)
	fmt.Fprintf(w, "xllcorner %s\n", formatCoord(t.X0))
	fmt.Fprintf(w, "yllcorner %s\n", formatCoord(bottom))
	if sameRes(t.DX, -t.DY) {
		fmt.Fprintf(w, "cellsize %s\n", formatCoord(t.DX))
	} else {
		fmt.Fprintf(w, "dx %s\n", formatCoord(t.DX))
		fmt.Fprintf(w, "dy %s\n", formatCoord(-t.DY))
	}
	if g.HasNoData {
		fmt.Fprintf(w, "NODATA_value %s\n", g.formatCell(g.NoData))
	}

	for r := 0; r < g.Rows; r++ {
		row := g.Data[r*g.Cols : (r+1)*g.Cols]
		for c, v := range row {
			if c > 0 {
				w.WriteByte(' ')
			}
			if !g.Valid(v) && g.HasNoData {
				v = g.NoData
			}
			w.WriteString(g.formatCell(v))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write raster %s: %w", filepath.Base(path), err)
	}

	if g.CRS != "" {
		if err := os.WriteFile(prjPath(path), []byte(g.CRS), 0o644); err != nil {
			return fmt.Errorf("write raster crs: %w", err)
		}
	}
	return nil
}

func (g *Grid) formatCell(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	if g.DataType == Int32 {
		return strconv.FormatInt(int64(math.Round(v)), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 32)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func prjPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}

func readPRJ(path string) (string, error) {
	b, err := os.ReadFile(prjPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read raster crs: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter",
		"cellsize", "dx", "dy", "nodata_value":
		return true
	}
	return false
}

func headerInt(vals map[string]string, key string) (int, error) {
	s, ok := vals[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", errHeader, key)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errHeader, key, s)
	}
	return n, nil
}

func headerFloat(vals map[string]string, key string) (float64, bool, error) {
	s, ok := vals[key]
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s %q", errHeader, key, s)
	}
	return v, true, nil
}

func cellSize(vals map[string]string) (dx, dy float64, err error) {
	cs, ok, err := headerFloat(vals, "cellsize")
	if err != nil {
		return 0, 0, err
	}
	if ok {
		dx, dy = cs, cs
	} else {
		var okX, okY bool
		if dx, okX, err = headerFloat(vals, "dx"); err != nil {
			return 0, 0, err
		}
		if dy, okY, err = headerFloat(vals, "dy"); err != nil {
			return 0, 0, err
		}
		if !okX || !okY {
			return 0, 0, fmt.Errorf("%w: missing cellsize", errHeader)
		}
	}
	if dx <= 0 || dy <= 0 {
		return 0, 0, fmt.Errorf("%w: non-positive cell size", errHeader)
	}
	return dx, dy, nil
}

// corner returns the lower-left coordinate and whether it was given as a cell center.
func corner(vals map[string]string, cornerKey, centerKey string) (float64, bool, error) {
	v, ok, err := headerFloat(vals, cornerKey)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return v, false, nil
	}
	v, ok, err = headerFloat(vals, centerKey)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, fmt.Errorf("%w: missing %s", errHeader, cornerKey)
	}
	return v, true, nil
}
