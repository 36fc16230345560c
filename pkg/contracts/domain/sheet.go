package domain

// Metadata column names injected by the reader. Downstream components key on
// these names, so they live with the table contract.
const (
	ColSourceFile         = "source_file"
	ColSourceSheet        = "source_sheet"
	ColSourcePath         = "source_path"
	ColIngestionTimestamp = "ingestion_timestamp"
	ColFleetNumber        = "fleet_number"
	ColBusRangeStart      = "bus_range_start"
	ColBusRangeEnd        = "bus_range_end"
)

// SingleSheetLabel is the sheet name synthesized for sources without a
// native sheet concept, so every source decodes to the same shape.
const SingleSheetLabel = "<single>"

// Sheet is one decoded sheet of one input file.
type Sheet struct {
	Name  string
	Table *Table
}

// FileMetadata describes an input file before decoding.
type FileMetadata struct {
	FileName   string   `json:"file_name"`
	FilePath   string   `json:"file_path"`
	FileSize   int64    `json:"file_size"`
	Extension  string   `json:"file_extension"`
	SheetNames []string `json:"sheet_names,omitempty"`
	SheetCount int      `json:"sheet_count,omitempty"`
}
