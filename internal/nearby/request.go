package nearby

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
)

// Request selects one nearby line over an optional date window
// A zero Start or End leaves that side of the window open.
type Request struct {
	Line         int `validate:"min=1"`
	Start        time.Time
	End          time.Time
	WithSegments bool
}

// RootRequest builds a nearby line for a product root without an explicit contract list
type RootRequest struct {
	Root         string    `validate:"required,alpha"`
	Line         int       `validate:"min=1"`
	Start        time.Time `validate:"required"`
	End          time.Time `validate:"required"`
	Months       []string  // cycle letters, e.g. ["H", "K", "N", "U", "Z"] or ["H K N U Z"]; empty uses the calendar
	CurrentFront string    `validate:"omitempty,contract"`
	WithSegments bool
}

func (r RootRequest) request() Request {
	return Request{Line: r.Line, Start: r.Start, End: r.End, WithSegments: r.WithSegments}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("contract", isContractSymbol)
	v.RegisterStructValidation(windowOrder, Request{}, RootRequest{})
	return v
}

func isContractSymbol(fl validator.FieldLevel) bool {
	_, err := calendar.ParseSymbol(fl.Field().String())
	return err == nil
}

func windowOrder(sl validator.StructLevel) {
	var start, end time.Time
	switch r := sl.Current().Interface().(type) {
	case Request:
		start, end = r.Start, r.End
	case RootRequest:
		start, end = r.Start, r.End
	}
	if !start.IsZero() && !end.IsZero() && calendar.Day(end).Before(calendar.Day(start)) {
		sl.ReportError(end, "End", "End", "gtestart", "")
	}
}

// check runs struct validation and flattens failures into one ErrInvalidRequest
func check(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidRequest, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", contracts.ErrInvalidRequest, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "alpha":
		return fmt.Sprintf("%s must contain letters only", field)
	case "contract":
		return fmt.Sprintf("%s must be a contract symbol like KCZ25", field)
	case "gtestart":
		return fmt.Sprintf("%s must not be before Start", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
