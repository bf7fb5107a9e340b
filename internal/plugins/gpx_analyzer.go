package plugins

import (
	"context"
	"encoding/xml"
	"math"
	"time"

	"toolhub/services/conversion-api/internal/domain/tool"
)

const earthRadiusMeters = 6371000

// gpxAnalyzer parses a GPX track in-process and returns aggregate ride
// statistics as a structured result instead of an artifact.
type gpxAnalyzer struct {
	desc tool.Descriptor
}

// NewGPXAnalyzer builds the GPX analysis plugin.
func NewGPXAnalyzer() (tool.Plugin, error) {
	return &gpxAnalyzer{
		desc: tool.Descriptor{
			Name:              "gpx-analyzer",
			DisplayName:       "GPX Track Analyzer",
			Category:          "geo",
			Version:           "1.0.0",
			AllowedExtensions: []string{"gpx"},
			MaxInputBytes:     10 * 1024 * 1024,
		},
	}, nil
}

type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat       float64 `xml:"lat,attr"`
	Lon       float64 `xml:"lon,attr"`
	Elevation float64 `xml:"ele"`
	Time      string  `xml:"time"`
}

// TrackStats is the analysis result for one GPX file.
type TrackStats struct {
	TrackName        string  `json:"track_name,omitempty"`
	PointCount       int     `json:"point_count"`
	DistanceMeters   float64 `json:"distance_meters"`
	DurationSeconds  float64 `json:"duration_seconds"`
	ElevationGain    float64 `json:"elevation_gain_meters"`
	ElevationLoss    float64 `json:"elevation_loss_meters"`
	AvgSpeedKmh      float64 `json:"avg_speed_kmh"`
	MaxElevationM    float64 `json:"max_elevation_meters"`
	MinElevationM    float64 `json:"min_elevation_meters"`
	StartTime        string  `json:"start_time,omitempty"`
	EndTime          string  `json:"end_time,omitempty"`
}

func (p *gpxAnalyzer) Metadata() tool.Descriptor { return p.desc }

func (p *gpxAnalyzer) Validate(ctx context.Context, in tool.Input) error {
	if err := tool.ValidateCommon(p.desc, in); err != nil {
		return err
	}
	var file gpxFile
	if err := xml.Unmarshal(in.Data, &file); err != nil {
		return tool.Rejectf("%s is not a valid GPX document", in.Filename)
	}
	if countPoints(file) == 0 {
		return tool.Rejectf("%s contains no track points", in.Filename)
	}
	return nil
}

func (p *gpxAnalyzer) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	var file gpxFile
	if err := xml.Unmarshal(in.Data, &file); err != nil {
		return nil, tool.Rejectf("%s is not a valid GPX document", in.Filename)
	}

	stats := analyzeTrack(file)
	return &tool.Output{JSON: stats}, nil
}

func (p *gpxAnalyzer) Cleanup(paths ...string) {}

func countPoints(file gpxFile) int {
	total := 0
	for _, trk := range file.Tracks {
		for _, seg := range trk.Segments {
			total += len(seg.Points)
		}
	}
	return total
}

func analyzeTrack(file gpxFile) TrackStats {
	stats := TrackStats{
		MinElevationM: math.MaxFloat64,
		MaxElevationM: -math.MaxFloat64,
	}
	if len(file.Tracks) > 0 {
		stats.TrackName = file.Tracks[0].Name
	}

	var prev *gpxPoint
	var firstTime, lastTime time.Time

	for _, trk := range file.Tracks {
		for _, seg := range trk.Segments {
			for i := range seg.Points {
				pt := &seg.Points[i]
				stats.PointCount++

				if pt.Elevation > stats.MaxElevationM {
					stats.MaxElevationM = pt.Elevation
				}
				if pt.Elevation < stats.MinElevationM {
					stats.MinElevationM = pt.Elevation
				}

				if ts, err := time.Parse(time.RFC3339, pt.Time); err == nil {
					if firstTime.IsZero() || ts.Before(firstTime) {
						firstTime = ts
					}
					if ts.After(lastTime) {
						lastTime = ts
					}
				}

				if prev != nil {
					stats.DistanceMeters += haversine(prev.Lat, prev.Lon, pt.Lat, pt.Lon)
					delta := pt.Elevation - prev.Elevation
					if delta > 0 {
						stats.ElevationGain += delta
					} else {
						stats.ElevationLoss -= delta
					}
				}
				prev = pt
			}
			// Segments are independent recordings; distance never bridges the
			// gap between them.
			prev = nil
		}
	}

	if stats.PointCount == 0 {
		stats.MinElevationM = 0
		stats.MaxElevationM = 0
		return stats
	}

	if !firstTime.IsZero() && lastTime.After(firstTime) {
		stats.DurationSeconds = lastTime.Sub(firstTime).Seconds()
		stats.StartTime = firstTime.UTC().Format(time.RFC3339)
		stats.EndTime = lastTime.UTC().Format(time.RFC3339)
		if stats.DurationSeconds > 0 {
			stats.AvgSpeedKmh = (stats.DistanceMeters / stats.DurationSeconds) * 3.6
		}
	}

	return stats
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
