package entity

import (
	"time"
)

// Sailing is one scheduled departure of a ship, uniquely identified by
// SailingCode. LogicalCruiseID repeats across departures of the same
// itinerary and must never be used as a key.
type Sailing struct {
	SailingCode     string
	LogicalCruiseID string
	LineID          int
	ShipID          int
	Name            string
	VoyageCode      string
	SailDate        time.Time
	Nights          int
	EmbarkPortID    int
	DisembarkPortID int
	RegionIDs       []int
	Currency        string
	FilePath        string

	// Human-readable names carried from the document for prerequisite
	// upserts. Absent entries get a synthetic placeholder.
	LineName    string
	ShipName    string
	PortNames   map[int]string
	RegionNames map[int]string
}

// ItineraryDay is one day entry of a sailing's itinerary
type ItineraryDay struct {
	Day        int
	PortID     int
	PortName   string
	ArriveTime string
	DepartTime string
	SeaDay     bool
}

// Reference entities, keyed by the provider's natural IDs.

type CruiseLine struct {
	ID   int
	Name string
}

type Ship struct {
	ID     int
	LineID int
	Name   string
}

type Port struct {
	ID   int
	Name string
}

type Region struct {
	ID   int
	Name string
}

// SailingRef identifies a sailing flagged for a price refresh
type SailingRef struct {
	SailingCode string
	LineID      int
	ShipID      int
	FilePath    string
}

// ArchiveEntry is one listing entry from the remote archive
type ArchiveEntry struct {
	Name string
	Dir  bool
	Size int64
}
