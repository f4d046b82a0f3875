package vitals

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Vitals is one set of measurements taken during a visit. Every
// measurement is optional, but a record carries at least one.
type Vitals struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	VisitID         uuid.UUID `json:"visit_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	TemperatureC    *float64  `json:"temperature_c,omitempty"`
	SystolicBP      *int      `json:"systolic_bp,omitempty"`
	DiastolicBP     *int      `json:"diastolic_bp,omitempty"`
	HeartRate       *int      `json:"heart_rate,omitempty"`
	RespiratoryRate *int      `json:"respiratory_rate,omitempty"`
	SpO2            *int      `json:"spo2,omitempty"`
	WeightKg        *float64  `json:"weight_kg,omitempty"`
	HeightCm        *float64  `json:"height_cm,omitempty"`
	BMI             *float64  `json:"bmi,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	RecordedBy      uuid.UUID `json:"recorded_by"`
	RecordedAt      time.Time `json:"recorded_at"`

	RecordedByName string `json:"recorded_by_name,omitempty"`
}

// RecordRequest carries the measurements; ranges reject values that are
// physiologically implausible rather than merely abnormal.
type RecordRequest struct {
	TemperatureC    *float64 `json:"temperature_c" validate:"omitempty,gte=30,lte=45"`
	SystolicBP      *int     `json:"systolic_bp" validate:"omitempty,gte=50,lte=300"`
	DiastolicBP     *int     `json:"diastolic_bp" validate:"omitempty,gte=20,lte=200"`
	HeartRate       *int     `json:"heart_rate" validate:"omitempty,gte=20,lte=300"`
	RespiratoryRate *int     `json:"respiratory_rate" validate:"omitempty,gte=4,lte=80"`
	SpO2            *int     `json:"spo2" validate:"omitempty,gte=0,lte=100"`
	WeightKg        *float64 `json:"weight_kg" validate:"omitempty,gte=0.5,lte=500"`
	HeightCm        *float64 `json:"height_cm" validate:"omitempty,gte=20,lte=300"`
	Notes           string   `json:"notes" validate:"omitempty,max=1000"`
}

func (r RecordRequest) empty() bool {
	return r.TemperatureC == nil && r.SystolicBP == nil && r.DiastolicBP == nil &&
		r.HeartRate == nil && r.RespiratoryRate == nil && r.SpO2 == nil &&
		r.WeightKg == nil && r.HeightCm == nil
}

// BMI returns weight / height² rounded to one decimal, or nil unless both
// are known.
func BMI(weightKg, heightCm *float64) *float64 {
	if weightKg == nil || heightCm == nil || *heightCm <= 0 {
		return nil
	}
	m := *heightCm / 100
	bmi := math.Round(*weightKg/(m*m)*10) / 10
	return &bmi
}
