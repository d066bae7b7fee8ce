// Package model holds the source-discriminated domain entities ingested and
// persisted by this system: routes, stops, trips, stop times, vehicle
// positions and alerts, each scoped to a source.Source and carrying a
// per-source data payload.
//
// Every `Data` field below is a tagged union: the concrete Go type stored in
// the interface is chosen by the row's Source, never by inspecting the
// payload itself. DecodeXData functions perform that selection when data
// arrives as raw JSON (e.g. read back from a jsonb column); callers that
// construct entities directly (the adapters) just assign the right concrete
// type.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trainstatus/ingest/source"
)

// ---- Route ----

type RouteData interface{ isRouteData() }

type MtaSubwayRouteData struct{}

func (MtaSubwayRouteData) isRouteData() {}

type MtaBusRouteData struct {
	Shuttle bool `json:"shuttle"`
}

func (MtaBusRouteData) isRouteData() {}

func DecodeRouteData(src source.Source, raw []byte) (RouteData, error) {
	switch src {
	case source.MtaSubway:
		return MtaSubwayRouteData{}, nil
	case source.MtaBus:
		var d MtaBusRouteData
		if len(raw) == 0 {
			return d, nil
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decoding mta_bus route data: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown source %v", src)
	}
}

// Route geometry is passed through as raw WKB bytes; this system never
// constructs or inspects geometry itself (spec Non-goals).
type Route struct {
	ID        string
	Source    source.Source
	LongName  string
	ShortName string
	// Color is stored with a leading '#'.
	Color string
	Data  RouteData
	Geom  []byte // optional WKB, SRID 4326
}

// ---- Stop ----

type Borough int

const (
	BoroughUnknown Borough = iota
	BoroughManhattan
	BoroughBrooklyn
	BoroughQueens
	BoroughBronx
	BoroughStatenIsland
)

type CompassDirection int

const (
	CompassUnknown CompassDirection = iota
	CompassNorth
	CompassSouth
	CompassEast
	CompassWest
)

type StopData interface{ isStopData() }

type MtaSubwayStopData struct {
	ADA            bool    `json:"ada"`
	Notes          *string `json:"notes,omitempty"`
	NorthHeadsign  *string `json:"north_headsign,omitempty"`
	SouthHeadsign  *string `json:"south_headsign,omitempty"`
	Borough        Borough `json:"borough"`
}

func (MtaSubwayStopData) isStopData() {}

type MtaBusStopData struct {
	Direction CompassDirection `json:"direction"`
}

func (MtaBusStopData) isStopData() {}

func DecodeStopData(src source.Source, raw []byte) (StopData, error) {
	switch src {
	case source.MtaSubway:
		var d MtaSubwayStopData
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decoding mta_subway stop data: %w", err)
			}
		}
		return d, nil
	case source.MtaBus:
		var d MtaBusStopData
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decoding mta_bus stop data: %w", err)
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown source %v", src)
	}
}

type Stop struct {
	ID        string
	Source    source.Source
	Name      string
	Geom      []byte
	Transfers []string
	Data      StopData
	Routes    []RouteStop
}

// ---- RouteStop ----

type StopType int

const (
	StopTypeUnknown StopType = iota
	StopTypeFullTime
	StopTypePartTime
	StopTypeLateNight
	StopTypeRushHour
	StopTypeRushHourOneDirection
	StopTypeWeekdayOnly
	StopTypeNightsWeekendsOnly
)

type RouteStopData interface{ isRouteStopData() }

type MtaSubwayRouteStopData struct {
	StopType StopType `json:"stop_type"`
}

func (MtaSubwayRouteStopData) isRouteStopData() {}

type MtaBusRouteStopData struct {
	Headsign  string           `json:"headsign"`
	Direction CompassDirection `json:"direction"`
}

func (MtaBusRouteStopData) isRouteStopData() {}

type RouteStop struct {
	RouteID      string
	Source       source.Source
	StopID       string
	StopSequence int16
	Data         RouteStopData
}

// ---- StopTransfer ----

// known-bogus stop id that appears in subway transfer feeds but names no
// physical stop; filtered out of every transfer we persist.
const bogusTransferStopID = "140"

type StopTransfer struct {
	FromStopID      string
	FromSource      source.Source
	ToStopID        string
	ToSource        source.Source
	TransferType    int16
	MinTransferTime *int16
}

// Valid reports whether the transfer should be persisted: self-transfers and
// the known-bogus stop id are dropped.
func (t StopTransfer) Valid() bool {
	if t.FromStopID == t.ToStopID && t.FromSource == t.ToSource {
		return false
	}
	if t.FromStopID == bogusTransferStopID || t.ToStopID == bogusTransferStopID {
		return false
	}
	return true
}

// ---- Trip ----

type TripData interface{ isTripData() }

type MtaSubwayTripData struct{}

func (MtaSubwayTripData) isTripData() {}

type MtaBusTripData struct {
	// Deviation in meters/seconds from schedule, when reported.
	Deviation *float64 `json:"deviation,omitempty"`
}

func (MtaBusTripData) isTripData() {}

func DecodeTripData(src source.Source, raw []byte) (TripData, error) {
	switch src {
	case source.MtaSubway:
		return MtaSubwayTripData{}, nil
	case source.MtaBus:
		var d MtaBusTripData
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decoding mta_bus trip data: %w", err)
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown source %v", src)
	}
}

type Trip struct {
	// ID is a client-proposed, time-ordered identifier (uuid.NewV7-style,
	// see NewTripID). The store may return a different, pre-existing DB id
	// for the same natural key on upsert.
	ID         uuid.UUID
	Source     source.Source
	OriginalID string
	VehicleID  string
	RouteID    string
	// Direction: MTA subway uses {1: north, 3: south}; buses use {0, 1}.
	Direction *int16
	CreatedAt time.Time
	UpdatedAt time.Time
	Data      TripData
}

// NewTripID returns a new client-proposed, time-ordered trip identifier.
func NewTripID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the entropy source is broken; fall back
		// to a random v4 rather than propagating an error from what is
		// conceptually infallible id generation.
		return uuid.New()
	}
	return id
}

// NaturalKey is the tuple trips are deduplicated on across feed cycles.
type TripNaturalKey struct {
	OriginalID string
	VehicleID  string
	CreatedAt  time.Time
	Direction  *int16
}

func (t Trip) NaturalKey() TripNaturalKey {
	return TripNaturalKey{
		OriginalID: t.OriginalID,
		VehicleID:  t.VehicleID,
		CreatedAt:  t.CreatedAt,
		Direction:  t.Direction,
	}
}

// ---- StopTime ----

type StopTimeData interface{ isStopTimeData() }

type MtaSubwayStopTimeData struct {
	ScheduledTrack *string `json:"scheduled_track,omitempty"`
	ActualTrack    *string `json:"actual_track,omitempty"`
}

func (MtaSubwayStopTimeData) isStopTimeData() {}

type MtaBusStopTimeData struct{}

func (MtaBusStopTimeData) isStopTimeData() {}

func DecodeStopTimeData(src source.Source, raw []byte) (StopTimeData, error) {
	switch src {
	case source.MtaSubway:
		var d MtaSubwayStopTimeData
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decoding mta_subway stop_time data: %w", err)
			}
		}
		return d, nil
	case source.MtaBus:
		return MtaBusStopTimeData{}, nil
	default:
		return nil, fmt.Errorf("unknown source %v", src)
	}
}

type StopTime struct {
	TripID    uuid.UUID
	Source    source.Source
	StopID    string
	Arrival   *time.Time
	Departure *time.Time
	Data      StopTimeData
}

// ---- VehiclePosition ----

type VehiclePositionData interface{ isVehiclePositionData() }

type MtaSubwayPositionData struct {
	Assigned bool    `json:"assigned"`
	Status   *string `json:"status,omitempty"`
}

func (MtaSubwayPositionData) isVehiclePositionData() {}

type MtaBusPositionData struct {
	OccupancyCount    *int32  `json:"occupancy_count,omitempty"`
	OccupancyCapacity *int32  `json:"occupancy_capacity,omitempty"`
	Status            *string `json:"status,omitempty"`
	Phase             *string `json:"phase,omitempty"`
}

func (MtaBusPositionData) isVehiclePositionData() {}

func DecodeVehiclePositionData(src source.Source, raw []byte) (VehiclePositionData, error) {
	switch src {
	case source.MtaSubway:
		var d MtaSubwayPositionData
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decoding mta_subway position data: %w", err)
			}
		}
		return d, nil
	case source.MtaBus:
		var d MtaBusPositionData
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decoding mta_bus position data: %w", err)
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown source %v", src)
	}
}

type VehiclePosition struct {
	VehicleID string
	Source    source.Source
	TripID    *uuid.UUID
	StopID    *string
	UpdatedAt time.Time
	Geom      []byte
	Data      VehiclePositionData
}
