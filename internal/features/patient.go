// Package features holds the clinical input record collected by the form and
// its conversion into the positional vector the classifier was trained on.
//
// Position is the only contract with the model: age, sex, resting blood
// pressure, cholesterol, maximum heart rate. Named fields exist for internal
// call sites; the positional array is produced only at the inference boundary.
package features

import (
	"fmt"
	"math"
	"strings"
)

// Sex is encoded the way the model expects it: 1 = male, 0 = female.
type Sex int

const (
	Female Sex = 0
	Male   Sex = 1
)

// Form option labels
const (
	SexLabelMale   = "Masculino"
	SexLabelFemale = "Femenino"
)

// String returns the form label for the sex value.
func (s Sex) String() string {
	if s == Male {
		return SexLabelMale
	}
	return SexLabelFemale
}

// ParseSex accepts the form labels as well as the encoded values and common
// short forms.
func ParseSex(v string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "masculino", "male", "m", "h", "1":
		return Male, nil
	case "femenino", "female", "f", "0":
		return Female, nil
	}
	return Female, fmt.Errorf("unknown sex value %q", v)
}

// Range is an inclusive numeric bound enforced by the input widgets.
type Range struct {
	Min, Max int
}

func (r Range) contains(v int) bool { return v >= r.Min && v <= r.Max }

// FeatureCount is the vector length the shipped models are trained on.
const FeatureCount = 5

// Input ranges of the form widgets
var (
	AgeRange          = Range{Min: 20, Max: 90}
	RestingBPRange    = Range{Min: 80, Max: 200}
	CholesterolRange  = Range{Min: 100, Max: 400}
	MaxHeartRateRange = Range{Min: 60, Max: 220}
)

// FeatureNames lists the positional features in training order.
var FeatureNames = []string{"edad", "sexo", "presion_arterial", "colesterol", "frecuencia_cardiaca_max"}

// Patient is one set of clinical inputs.
type Patient struct {
	Age          int `json:"age"`
	Sex          Sex `json:"sex"`
	RestingBP    int `json:"resting_bp"`
	Cholesterol  int `json:"cholesterol"`
	MaxHeartRate int `json:"max_heart_rate"`
}

// DefaultPatient returns the values the form shows before any user input.
func DefaultPatient() Patient {
	return Patient{
		Age:          50,
		Sex:          Male,
		RestingBP:    120,
		Cholesterol:  200,
		MaxHeartRate: 150,
	}
}

// RangeError reports a field outside its widget range.
type RangeError struct {
	Field string
	Value int
	Range Range
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s value %d outside range [%d, %d]", e.Field, e.Value, e.Range.Min, e.Range.Max)
}

// Validate checks every field against the widget ranges.
func (p Patient) Validate() error {
	checks := []struct {
		field string
		value int
		rng   Range
	}{
		{"age", p.Age, AgeRange},
		{"resting_bp", p.RestingBP, RestingBPRange},
		{"cholesterol", p.Cholesterol, CholesterolRange},
		{"max_heart_rate", p.MaxHeartRate, MaxHeartRateRange},
	}
	for _, c := range checks {
		if !c.rng.contains(c.value) {
			return &RangeError{Field: c.field, Value: c.value, Range: c.rng}
		}
	}
	if p.Sex != Male && p.Sex != Female {
		return fmt.Errorf("sex must be 0 or 1, got %d", p.Sex)
	}
	return nil
}

// Vector returns the positional feature array in training order.
func (p Patient) Vector() Vector {
	return Vector{
		float64(p.Age),
		float64(p.Sex),
		float64(p.RestingBP),
		float64(p.Cholesterol),
		float64(p.MaxHeartRate),
	}
}

// Vector is the untyped positional form handed to the model. Its length is
// not checked here; the model rejects a mismatch at prediction time.
type Vector []float64

// Finite reports whether every element is a finite number.
func (v Vector) Finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// PatientForm mirrors the HTML form fields.
type PatientForm struct {
	Age          int    `schema:"edad"`
	Sex          string `schema:"genero"`
	RestingBP    int    `schema:"presion"`
	Cholesterol  int    `schema:"colesterol"`
	MaxHeartRate int    `schema:"frecuencia"`
}

// FormFromPatient fills the form with the patient values.
func FormFromPatient(p Patient) PatientForm {
	return PatientForm{
		Age:          p.Age,
		Sex:          p.Sex.String(),
		RestingBP:    p.RestingBP,
		Cholesterol:  p.Cholesterol,
		MaxHeartRate: p.MaxHeartRate,
	}
}

// Patient converts and validates the submitted form.
func (f PatientForm) Patient() (Patient, error) {
	sex, err := ParseSex(f.Sex)
	if err != nil {
		return Patient{}, err
	}
	p := Patient{
		Age:          f.Age,
		Sex:          sex,
		RestingBP:    f.RestingBP,
		Cholesterol:  f.Cholesterol,
		MaxHeartRate: f.MaxHeartRate,
	}
	if err := p.Validate(); err != nil {
		return Patient{}, err
	}
	return p, nil
}
