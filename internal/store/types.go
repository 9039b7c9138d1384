package store

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/clhost/internal/tune"
)

// Record is the persisted outcome of one tuning run.
type Record struct {
	// ID is the unique identifier of this run
	ID string `json:"id"`

	// Device and DeviceUUID identify the device that was measured
	Device     string `json:"device"`
	DeviceUUID string `json:"deviceUuid"`

	// Kernel is the tuned kernel name and Global its launch size
	Kernel string `json:"kernel"`
	Global []int  `json:"global"`

	// Best is the fastest local size; nil means the device's own choice
	Best        []int         `json:"best"`
	BestRunTime time.Duration `json:"bestRunTime"`

	Baseline        []int         `json:"baseline"`
	BaselineRunTime time.Duration `json:"baselineRunTime"`

	// Trials is the number of distinct local sizes measured out of Space
	Trials int `json:"trials"`
	Space  int `json:"space"`

	Timestamp time.Time `json:"timestamp"`
}

// RecordInfo is the listing view of a Record.
type RecordInfo struct {
	ID          string        `json:"id"`
	Device      string        `json:"device"`
	Kernel      string        `json:"kernel"`
	Global      []int         `json:"global"`
	Best        []int         `json:"best"`
	BestRunTime time.Duration `json:"bestRunTime"`
	Speedup     float64       `json:"speedup"`
	Timestamp   time.Time     `json:"timestamp"`
}

// NewRecord converts a tuning result into a record with a fresh ID.
func NewRecord(device, deviceUUID, kernel string, global []int, res *tune.Result) *Record {
	return &Record{
		ID:              uuid.NewString(),
		Device:          device,
		DeviceUUID:      deviceUUID,
		Kernel:          kernel,
		Global:          slices.Clone(global),
		Best:            slices.Clone(res.Best.Local),
		BestRunTime:     res.Best.RunTime,
		Baseline:        slices.Clone(res.Baseline.Local),
		BaselineRunTime: res.Baseline.RunTime,
		Trials:          len(res.Trials),
		Space:           res.Space,
		Timestamp:       time.Now(),
	}
}

// Speedup is the baseline run time over the best run time.
func (r *Record) Speedup() float64 {
	if r.BestRunTime <= 0 {
		return 0
	}
	return float64(r.BaselineRunTime) / float64(r.BestRunTime)
}

// ToInfo converts a full Record to RecordInfo.
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		ID:          r.ID,
		Device:      r.Device,
		Kernel:      r.Kernel,
		Global:      r.Global,
		Best:        r.Best,
		BestRunTime: r.BestRunTime,
		Speedup:     r.Speedup(),
		Timestamp:   r.Timestamp,
	}
}

// Matches reports whether r was measured for kernel over global on the
// device with deviceUUID.
func (r *Record) Matches(deviceUUID, kernel string, global []int) bool {
	return r.DeviceUUID == deviceUUID && r.Kernel == kernel && slices.Equal(r.Global, global)
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Kernel == "" {
		return &ValidationError{Field: "Kernel", Reason: "cannot be empty"}
	}
	if len(r.Global) < 1 || len(r.Global) > 3 {
		return &ValidationError{Field: "Global", Reason: "must have 1 to 3 dimensions"}
	}
	for _, g := range r.Global {
		if g <= 0 {
			return &ValidationError{Field: "Global", Reason: "sizes must be positive"}
		}
	}
	if r.Best != nil {
		if len(r.Best) != len(r.Global) {
			return &ValidationError{
				Field:  "Best",
				Reason: fmt.Sprintf("has %d dimensions, global has %d", len(r.Best), len(r.Global)),
			}
		}
		for i, l := range r.Best {
			if l <= 0 || r.Global[i]%l != 0 {
				return &ValidationError{Field: "Best", Reason: fmt.Sprintf("%d does not divide %d", l, r.Global[i])}
			}
		}
	}
	if r.BestRunTime < 0 || r.BaselineRunTime < 0 {
		return &ValidationError{Field: "RunTime", Reason: "cannot be negative"}
	}
	if r.Trials < 0 || r.Space < 0 {
		return &ValidationError{Field: "Trials", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
