// Package domain models NOAA Atlas 14 precipitation-frequency grids.
//
// # Data Source
//
// Gridded precipitation-frequency estimates (partial duration series) are
// published by the NWS Hydrometeorological Design Studies Center (HDSC) at
// https://hdsc.nws.noaa.gov/pub/hdsc/data/<zone>/. Each Atlas 14 volume covers
// one zone and publishes one zip archive per recurrence interval, duration and
// variant. Background: https://hdsc.nws.noaa.gov/pfds/pfds_gis.html.
//
// # HDSC Naming Conventions
//
// Archive and raster names:
//
//	"<zone><event>yr<duration>a[u|l]"  →  e.g. "orb100yr24hau"
//	zone:     lowercase volume code (sw, orb, pr, hi, ak, mw, se, ne, tx, inw, ...)
//	event:    recurrence interval in years: 1 2 5 10 25 50 100 200 500 1000
//	duration: 05m 10m 15m 30m 60m 02h 03h 06h 12h 24h
//	variant:  none = central estimate, "u" = upper 90% bound, "l" = lower 90% bound
//
// Archives carry a ".zip" suffix and unpack into Esri ASCII grids with the
// same stem and an ".asc" suffix. Mosaics of several zones are named
// "comb<event>yr<duration>a[u|l].asc".
//
// Depth encoding:
//
//	Cell values are integer thousandths of an inch: 4235 = 4.235 inches.
//	Non-positive values mark cells outside the published area.
//
// Coordinate reference system:
//
//	Grids and the zone index are geographic NAD83 (EPSG:4269). Project
//	areas in any other CRS are reprojected to NAD83 before zone lookup.
//
// Legacy index region:
//
//	The zone index still carries the region covered by the superseded
//	NOAA Atlas 2 under the code "Atlas2". It has no Atlas 14 grids and is
//	never fetched. See [LegacyZone].
//
// # Confidence Bounds
//
// Upper and lower variants bound a 90% confidence band (±1.645σ) of a
// lognormal depth distribution. The pipeline re-derives the 16th and 84th
// percentiles (±1σ) of the same distribution for the 100-year event, written
// next to the central grid with "_minus" and "_plus" suffixes.
package domain
