package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one completed simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string `json:"id"`
	CreatedAtUTC string `json:"created_at_utc"`
	// InputDigest is the hex sha256 of the troop description that was run.
	InputDigest string   `json:"input_digest"`
	InputPath   string   `json:"input_path,omitempty"`
	Policy      string   `json:"policy"`
	Rounds      int      `json:"rounds"`
	Divisor     uint64   `json:"divisor,omitempty"`
	Modulus     uint64   `json:"modulus,omitempty"`
	Inspections []uint64 `json:"inspections"`
	Product     uint64   `json:"product"`
}
