package model

import (
	"encoding/json"
	"time"
)

// Result is one entry of a batched read response.
type Result struct {
	Value  Value
	Status StatusCode
}

type Reading struct {
	NodeID      string     `json:"node_id"`
	DisplayName string     `json:"display_name"`
	Value       Value      `json:"value"`
	Status      StatusCode `json:"status"`
}

func NewReading(point DataPoint, result Result) Reading {
	return Reading{
		NodeID:      point.NodeID,
		DisplayName: point.DisplayName,
		Value:       result.Value,
		Status:      result.Status,
	}
}

// Quality is the stringified status code stored with the row.
func (r Reading) Quality() string {
	return r.Status.String()
}

func (r Reading) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		NodeID      string `json:"node_id"`
		DisplayName string `json:"display_name"`
		Value       Value  `json:"value"`
		Quality     string `json:"quality"`
	}{
		NodeID:      r.NodeID,
		DisplayName: r.DisplayName,
		Value:       r.Value,
		Quality:     r.Quality(),
	})
}

// StoredRow is a persisted reading. Rows are append-only.
type StoredRow struct {
	ID          int64     `json:"id"`
	NodeID      string    `json:"node_id"`
	DisplayName string    `json:"display_name"`
	Value       string    `json:"value"`
	DataType    string    `json:"data_type"`
	Timestamp   time.Time `json:"timestamp"`
	Quality     string    `json:"quality"`
}
