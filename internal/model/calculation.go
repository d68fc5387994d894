package model

import "time"

type CalculationType string

const (
	CalculationAddition       CalculationType = "addition"
	CalculationSubtraction    CalculationType = "subtraction"
	CalculationMultiplication CalculationType = "multiplication"
	CalculationDivision       CalculationType = "division"
)

func (t CalculationType) Valid() bool {
	switch t {
	case CalculationAddition, CalculationSubtraction, CalculationMultiplication, CalculationDivision:
		return true
	}
	return false
}

type Calculation struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      CalculationType `json:"type"`
	Inputs    []float64       `json:"inputs"`
	Result    float64         `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
