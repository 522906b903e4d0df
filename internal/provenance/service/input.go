package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmerrifield20/provenance/internal/checkpoint"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// CreateProductInput holds the caller-supplied fields of a new product.
type CreateProductInput struct {
	Name        string         `json:"name"                   validate:"required,max=200"`
	Category    model.Category `json:"category"               validate:"required,category"`
	Origin      string         `json:"origin"                 validate:"required,max=200"`
	BatchNumber string         `json:"batch_number,omitempty" validate:"max=100"`
	GPS         *model.GPS     `json:"gps,omitempty"`
	PhotoRef    string         `json:"photo_ref,omitempty"    validate:"max=2048"`
}

// AppendCheckpointInput holds the caller-supplied fields of a new block.
// Only the stage name is checked here; whether it may follow the current
// stage is decided by the checkpoint state machine.
type AppendCheckpointInput struct {
	Stage    model.Stage `json:"stage"               validate:"required,stage"`
	Location string      `json:"location"            validate:"required,max=200"`
	Handler  string      `json:"handler"             validate:"required,max=200"`
	Notes    string      `json:"notes,omitempty"     validate:"max=2000"`
	GPS      *model.GPS  `json:"gps,omitempty"`
	PhotoRef string      `json:"photo_ref,omitempty" validate:"max=2048"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return model.Category(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		_, err := checkpoint.ParseStage(fl.Field().String())
		return err == nil
	})
	return v
}

func (l *Ledger) validateInput(in any) error {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s %q is not a valid %s", fe.Field(), fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
