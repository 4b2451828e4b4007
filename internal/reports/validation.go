package reports

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"incident-portal/internal/lifecycle"
)

// payloadValidate is initialized in init() with the location pair rule.
var payloadValidate *validator.Validate

func init() {
	payloadValidate = validator.New()
	payloadValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	payloadValidate.RegisterStructValidation(validateLocation, Payload{})
}

// validateLocation requires latitude and longitude to be set together.
func validateLocation(sl validator.StructLevel) {
	p := sl.Current().Interface().(Payload)
	if (p.Latitude == nil) != (p.Longitude == nil) {
		if p.Latitude == nil {
			sl.ReportError(p.Latitude, "latitude", "Latitude", "pair", "")
		} else {
			sl.ReportError(p.Longitude, "longitude", "Longitude", "pair", "")
		}
	}
}

// normalize trims free-text fields and applies defaults before validation.
func (p *Payload) normalize() {
	p.Description = strings.TrimSpace(p.Description)
	p.ThreatType = strings.TrimSpace(p.ThreatType)
	p.State = strings.TrimSpace(p.State)
	p.LGA = strings.TrimSpace(p.LGA)
	p.ManualLocation = strings.TrimSpace(p.ManualLocation)
	p.ReporterName = strings.TrimSpace(p.ReporterName)
	p.ReporterContact = strings.TrimSpace(p.ReporterContact)
	p.Urgency = lifecycle.Urgency(strings.ToLower(strings.TrimSpace(string(p.Urgency))))
	if p.Channel == "" {
		p.Channel = ChannelForm
	}
	// Anonymous reports never carry identity, whatever the client sent.
	if p.IsAnonymous {
		p.ReporterName = ""
		p.ReporterContact = ""
	}
}

// Validate normalizes p in place and returns a *ValidationError listing
// every failing field, or nil.
func Validate(p *Payload) error {
	p.normalize()

	err := payloadValidate.Struct(*p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required unless the report is anonymous"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	case "pair":
		return "latitude and longitude must be provided together"
	default:
		return "is invalid"
	}
}
