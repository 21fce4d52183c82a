package domain

import (
	"math"
	"time"
)

// Retention windows for raw geo events and aggregated tiles.
const (
	GeoRawRetention  = 30 * 24 * time.Hour
	GeoTileRetention = 180 * 24 * time.Hour
)

// GeoEvent is one raw geolocation observation for a user. Tile coordinates
// are the position rounded to 3 decimal places (~110 m).
type GeoEvent struct {
	UserID   string    `json:"user_id"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	TileLat  float64   `json:"tile_lat"`
	TileLon  float64   `json:"tile_lon"`
	Accuracy float64   `json:"accuracy"`
	TS       time.Time `json:"ts"`
}

// GeoTile is the per-user aggregate over one tile.
type GeoTile struct {
	UserID      string    `json:"user_id"`
	TileLat     float64   `json:"tile_lat"`
	TileLon     float64   `json:"tile_lon"`
	Count       int64     `json:"count"`
	AvgAccuracy float64   `json:"avg_accuracy"`
	LastSeen    time.Time `json:"last_seen"`
}

// Tile rounds a coordinate to the 3-decimal tile grid.
func Tile(coord float64) float64 {
	return math.Round(coord*1000) / 1000
}

// NewGeoEvent builds a raw event with tile coordinates filled in.
func NewGeoEvent(userID string, lat, lon, accuracy float64, ts time.Time) GeoEvent {
	return GeoEvent{
		UserID:   userID,
		Lat:      lat,
		Lon:      lon,
		TileLat:  Tile(lat),
		TileLon:  Tile(lon),
		Accuracy: accuracy,
		TS:       ts,
	}
}
