// Package journal persists fusion records as compressed JSONL and indexes
// them in SQLite.
package journal

import (
	"time"

	"github.com/milk9111/blockfuse/merge"
)

// Box is a block's geometry in a record.
type Box struct {
	Position [3]float64 `json:"position"`
	Size     [3]float64 `json:"size"`
}

func boxOf(g merge.Geometry) Box {
	return Box{Position: g.Position, Size: g.Size}
}

// Volume returns the box volume.
func (b Box) Volume() float64 {
	return b.Size[0] * b.Size[1] * b.Size[2]
}

// Record is one completed fusion.
type Record struct {
	Seq        uint64    `json:"seq"`
	RecordedAt time.Time `json:"recorded_at"`
	Self       string    `json:"self"`
	Other      string    `json:"other"`
	Result     string    `json:"result"`
	Axis       string    `json:"axis"`
	Inputs     [2]Box    `json:"inputs"`
	Output     Box       `json:"output"`
	Material   string    `json:"material,omitempty"`
}

// NewRecord converts a fusion into a record. Seq is assigned by the writer.
func NewRecord(fu merge.Fusion, at time.Time) Record {
	return Record{
		RecordedAt: at.UTC(),
		Self:       fu.Self.String(),
		Other:      fu.Other.String(),
		Result:     fu.Result.String(),
		Axis:       fu.Axis.String(),
		Inputs:     [2]Box{boxOf(fu.Inputs[0]), boxOf(fu.Inputs[1])},
		Output:     boxOf(fu.Geometry),
		Material:   fu.Material.Name,
	}
}
