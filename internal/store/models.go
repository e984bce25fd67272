package store

import "time"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

type Variant struct {
	ID     string         `json:"id" yaml:"id" validate:"required"`
	Name   string         `json:"name" yaml:"name"`
	Weight int            `json:"weight" yaml:"weight" validate:"min=0,max=100"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"` // Free-form, owned by feature code
}

type Targeting struct {
	TrafficPercentage int      `json:"trafficPercentage" yaml:"trafficPercentage" validate:"min=0,max=100"`
	UserSegments      []string `json:"userSegments,omitempty" yaml:"userSegments,omitempty"`
	GeoTargeting      []string `json:"geoTargeting,omitempty" yaml:"geoTargeting,omitempty"`
	DeviceTypes       []string `json:"deviceTypes,omitempty" yaml:"deviceTypes,omitempty"`
}

type Metrics struct {
	Primary   string   `json:"primary" yaml:"primary"`
	Secondary []string `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

type Experiment struct {
	ID                      string     `json:"id" yaml:"id"`
	Name                    string     `json:"name" yaml:"name" validate:"required"`
	Description             string     `json:"description,omitempty" yaml:"description,omitempty"`
	Variants                []Variant  `json:"variants" yaml:"variants" validate:"required,min=1,dive"`
	Targeting               Targeting  `json:"targeting" yaml:"targeting"`
	Metrics                 Metrics    `json:"metrics" yaml:"metrics"`
	Status                  Status     `json:"status" yaml:"status"`
	StartDate               time.Time  `json:"startDate" yaml:"startDate"`
	EndDate                 *time.Time `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	MinimumSampleSize       int        `json:"minimumSampleSize,omitempty" yaml:"minimumSampleSize,omitempty" validate:"min=0"`
	StatisticalSignificance float64    `json:"statisticalSignificance,omitempty" yaml:"statisticalSignificance,omitempty" validate:"min=0,lt=1"`
	CreatedAt               time.Time  `json:"createdAt" yaml:"-"`
	UpdatedAt               time.Time  `json:"updatedAt" yaml:"-"`
}

// Variant returns the variant with the given id, or nil.
func (e *Experiment) Variant(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// ActiveAt reports whether t falls inside the experiment's scheduling window.
func (e *Experiment) ActiveAt(t time.Time) bool {
	if !e.StartDate.IsZero() && t.Before(e.StartDate) {
		return false
	}
	if e.EndDate != nil && !t.Before(*e.EndDate) {
		return false
	}
	return true
}

// Clone returns a deep copy so callers can't mutate stored definitions.
func (e *Experiment) Clone() *Experiment {
	c := *e
	c.Variants = make([]Variant, len(e.Variants))
	for i, v := range e.Variants {
		v.Config = cloneMap(v.Config)
		c.Variants[i] = v
	}
	c.Targeting.UserSegments = append([]string(nil), e.Targeting.UserSegments...)
	c.Targeting.GeoTargeting = append([]string(nil), e.Targeting.GeoTargeting...)
	c.Targeting.DeviceTypes = append([]string(nil), e.Targeting.DeviceTypes...)
	c.Metrics.Secondary = append([]string(nil), e.Metrics.Secondary...)
	if e.EndDate != nil {
		end := *e.EndDate
		c.EndDate = &end
	}
	return &c
}

type Assignment struct {
	ID              string         `json:"id"`
	ExperimentID    string         `json:"experimentId"`
	VariantID       string         `json:"variantId"`
	SubjectKey      string         `json:"subjectKey"` // UserID if set, else SessionID
	UserID          string         `json:"userId,omitempty"`
	SessionID       string         `json:"sessionId"`
	AssignedAt      time.Time      `json:"assignedAt"`
	Converted       bool           `json:"converted"`
	ConversionValue *float64       `json:"conversionValue,omitempty"`
	ConvertedAt     *time.Time     `json:"convertedAt,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the record.
func (a *Assignment) Clone() *Assignment {
	c := *a
	if a.ConversionValue != nil {
		v := *a.ConversionValue
		c.ConversionValue = &v
	}
	if a.ConvertedAt != nil {
		t := *a.ConvertedAt
		c.ConvertedAt = &t
	}
	c.Metadata = cloneMap(a.Metadata)
	return &c
}

// Conversion is the outcome attached to an existing assignment.
type Conversion struct {
	Value    *float64
	Metadata map[string]any
	At       time.Time
}

// apply merges c into a: value is last-write-wins, metadata keys overwrite.
func (c Conversion) apply(a *Assignment) {
	a.Converted = true
	at := c.At
	a.ConvertedAt = &at
	if c.Value != nil {
		v := *c.Value
		a.ConversionValue = &v
	}
	if len(c.Metadata) > 0 {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any, len(c.Metadata))
		}
		for k, v := range c.Metadata {
			a.Metadata[k] = v
		}
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
