// Package oba is a small client for the OneBusAway-compatible "vehicles for
// agency" endpoint the bus adapter uses to enrich GTFS-RT vehicle positions
// with occupancy and phase/status data GTFS-RT doesn't carry.
//
// Grounded on the teacher's integrations/oba.rs.
package oba

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type VehicleStatus struct {
	LastUpdateTime    time.Time `json:"-"`
	LastUpdateTimeMS  int64     `json:"lastUpdateTime"`
	OccupancyCapacity *int32    `json:"occupancyCapacity"`
	OccupancyCount    *int32    `json:"occupancyCount"`
	Phase             string    `json:"phase"`
	Status            string    `json:"status"`
	TripID            *string   `json:"tripId"`
	VehicleID         string    `json:"vehicleId"`
}

type response struct {
	Data struct {
		LimitExceeded bool            `json:"limitExceeded"`
		OutOfRange    bool            `json:"outOfRange"`
		List          []VehicleStatus `json:"list"`
	} `json:"data"`
}

// FetchVehicles fetches every vehicle currently reported for an agency.
func FetchVehicles(ctx context.Context, client *http.Client, endpoint, apiKey string) ([]VehicleStatus, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing OBA url: %w", err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building OBA request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OBA vehicles: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OBA request to %s returned status %d", endpoint, resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding OBA response: %w", err)
	}
	if out.Data.LimitExceeded {
		return nil, fmt.Errorf("OBA API limit exceeded")
	}
	if out.Data.OutOfRange {
		return nil, fmt.Errorf("OBA API request out of range")
	}
	for i := range out.Data.List {
		out.Data.List[i].LastUpdateTime = time.UnixMilli(out.Data.List[i].LastUpdateTimeMS).UTC()
	}
	return out.Data.List, nil
}
