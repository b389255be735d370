// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// PathsConfig holds the directory layout shared by every stage.
type PathsConfig struct {
	// InputDir is the base input directory (contains coordinates/, images/,
	// masks/, edt/, var/).
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// OutputDir is the base output directory (contains buffer_zone/, roi/,
	// variables/, consolidated/, index/).
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// LogsDir is the directory for run logs.
	LogsDir string `json:"logs_dir" yaml:"logs_dir"`
}

// BufferZoneConfig holds settings for the buffer-zone extraction stage.
type BufferZoneConfig struct {
	// DefaultRadius is the sphere radius in mm used when no sweep is
	// configured (default 5.0).
	DefaultRadius float64 `json:"default_radius" yaml:"default_radius"`

	// RadiusOptions is the ordered list of radii (mm) swept per subject.
	// Empty means a single pass at DefaultRadius.
	RadiusOptions []float64 `json:"radius_options" yaml:"radius_options"`

	// AllowOverlap is reserved for a future mutual-exclusion policy
	// between neighbouring seeds' spheres. It is parsed and threaded
	// through construction but not consulted: spheres are independent per
	// seed and a voxel may belong to several buffer zones at once.
	AllowOverlap bool `json:"allow_overlap" yaml:"allow_overlap"`

	// SubjectIDPattern is the regexp applied to a coordinate file name to
	// extract the subject identifier (default `(\d{4})`).
	SubjectIDPattern string `json:"subject_id_pattern" yaml:"subject_id_pattern"`
}

// Radii returns the effective radius sweep: RadiusOptions when set,
// otherwise a single pass at DefaultRadius.
func (c BufferZoneConfig) Radii() []float64 {
	if len(c.RadiusOptions) > 0 {
		return c.RadiusOptions
	}
	return []float64{c.DefaultRadius}
}

// ROIConfig holds settings for the ROI voxel extraction stage.
type ROIConfig struct {
	// CoordinateColumns names the voxel index columns (default X, Y, Z).
	CoordinateColumns []string `json:"coordinate_columns" yaml:"coordinate_columns"`

	// IntensityColumn names the value column (default Intensity).
	IntensityColumn string `json:"intensity_column" yaml:"intensity_column"`

	// SubjectIDPattern is the regexp used to extract subject identifiers
	// from image file names.
	SubjectIDPattern string `json:"subject_id_pattern" yaml:"subject_id_pattern"`
}

// VariablesConfig holds settings for the covariate extraction stage.
type VariablesConfig struct {
	// EDTEnabled controls extraction of Euclidean-distance-transform volumes.
	EDTEnabled bool `json:"edt_enabled" yaml:"edt_enabled"`

	// VarEnabled controls extraction of variance volumes.
	VarEnabled bool `json:"var_enabled" yaml:"var_enabled"`
}

// MissingPolicy selects how consolidation treats missing values.
type MissingPolicy string

const (
	MissingDrop MissingPolicy = "drop"
	MissingFill MissingPolicy = "fill"
)

// ConsolidationConfig holds settings for the consolidation stage.
type ConsolidationConfig struct {
	// HandleMissing selects the missing-value policy: drop or fill.
	HandleMissing MissingPolicy `json:"handle_missing" yaml:"handle_missing"`

	// FillValue is the substitute used when HandleMissing is "fill".
	FillValue float64 `json:"fill_value" yaml:"fill_value"`
}

// StoreConfig holds settings for the SQLite metrics store.
type StoreConfig struct {
	// MaxResults is the default maximum number of query results (default 50).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Paths         PathsConfig         `json:"paths" yaml:"paths"`
	BufferZone    BufferZoneConfig    `json:"buffer_zone" yaml:"buffer_zone"`
	ROI           ROIConfig           `json:"roi" yaml:"roi"`
	Variables     VariablesConfig     `json:"variables" yaml:"variables"`
	Consolidation ConsolidationConfig `json:"consolidation" yaml:"consolidation"`
	Store         StoreConfig         `json:"store" yaml:"store"`
}

// DefaultConfig returns a PipelineConfig with the documented defaults.
func DefaultConfig() PipelineConfig {
	return PipelineConfig{
		Paths: PathsConfig{
			InputDir:  "input",
			OutputDir: "output",
			LogsDir:   "logs",
		},
		BufferZone: BufferZoneConfig{
			DefaultRadius:    5.0,
			SubjectIDPattern: `(\d{4})`,
		},
		ROI: ROIConfig{
			CoordinateColumns: []string{"X", "Y", "Z"},
			IntensityColumn:   "Intensity",
			SubjectIDPattern:  `(\d{4})`,
		},
		Variables: VariablesConfig{
			EDTEnabled: true,
			VarEnabled: true,
		},
		Consolidation: ConsolidationConfig{
			HandleMissing: MissingDrop,
		},
		Store: StoreConfig{
			MaxResults: 50,
		},
	}
}
