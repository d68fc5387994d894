package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"go-calc-api/internal/event"
	"go-calc-api/internal/model"
	"go-calc-api/pkg/apierror"
)

type CalculationService struct {
	calculations CalculationStore
	bus          event.Bus
}

func NewCalculationService(calculations CalculationStore, bus event.Bus) *CalculationService {
	return &CalculationService{calculations: calculations, bus: bus}
}

func (s *CalculationService) Create(ctx context.Context, userID string, req model.CalculationRequest) (model.Calculation, error) {
	result, err := compute(req.Type, req.Inputs)
	if err != nil {
		return model.Calculation{}, err
	}

	now := time.Now().UTC()
	calculation := model.Calculation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      req.Type,
		Inputs:    req.Inputs,
		Result:    result,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.calculations.Create(ctx, calculation); err != nil {
		return model.Calculation{}, err
	}

	s.publish(event.TypeCalculationCreated, userID, calculation)
	return calculation, nil
}

func (s *CalculationService) List(ctx context.Context, userID string) ([]model.Calculation, error) {
	return s.calculations.ListByUser(ctx, userID)
}

func (s *CalculationService) Get(ctx context.Context, userID string, id string) (model.Calculation, error) {
	return s.calculations.FindByID(ctx, userID, id)
}

// Update recomputes the result from the new type and inputs. Ownership is
// enforced by the store; a foreign calculation reads as not found.
func (s *CalculationService) Update(ctx context.Context, userID string, id string, req model.CalculationRequest) (model.Calculation, error) {
	result, err := compute(req.Type, req.Inputs)
	if err != nil {
		return model.Calculation{}, err
	}

	calculation, err := s.calculations.FindByID(ctx, userID, id)
	if err != nil {
		return model.Calculation{}, err
	}

	calculation.Type = req.Type
	calculation.Inputs = req.Inputs
	calculation.Result = result
	calculation.UpdatedAt = time.Now().UTC()

	if err := s.calculations.Update(ctx, calculation); err != nil {
		return model.Calculation{}, err
	}

	s.publish(event.TypeCalculationUpdated, userID, calculation)
	return calculation, nil
}

func (s *CalculationService) Delete(ctx context.Context, userID string, id string) error {
	if err := s.calculations.Delete(ctx, userID, id); err != nil {
		return err
	}

	s.publish(event.TypeCalculationDeleted, userID, map[string]string{"id": id})
	return nil
}

func (s *CalculationService) publish(typ event.Type, actorID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ActorID:   actorID,
	})
}

// compute folds the inputs left to right.
func compute(typ model.CalculationType, inputs []float64) (float64, error) {
	if !typ.Valid() {
		return 0, apierror.Validation("calculation type must be one of addition, subtraction, multiplication, division", "type")
	}

	if len(inputs) < 2 {
		return 0, apierror.Validation("at least two inputs are required", "inputs")
	}

	for _, v := range inputs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, apierror.Validation("inputs must be finite numbers", "inputs")
		}
	}

	result := inputs[0]
	for _, v := range inputs[1:] {
		switch typ {
		case model.CalculationAddition:
			result += v
		case model.CalculationSubtraction:
			result -= v
		case model.CalculationMultiplication:
			result *= v
		case model.CalculationDivision:
			if v == 0 {
				return 0, apierror.Validation("cannot divide by zero", "inputs")
			}
			result /= v
		}
	}

	return result, nil
}
