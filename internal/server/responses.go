package server

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/kingrea/spritepal/internal/engine"
	"github.com/kingrea/spritepal/internal/imaging"
)

// APIVersion is reported by /health so clients can detect breaking changes.
const APIVersion = 1

type healthResponse struct {
	Status        string `json:"status"`
	Version       int    `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type paletteSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	Reference bool   `json:"reference,omitempty"`
}

// stateResponse summarizes the session after a request changed it.
type stateResponse struct {
	Dimensions string           `json:"dimensions"`
	HasBase    bool             `json:"has_base"`
	Colors     int              `json:"colors"`
	Palettes   []paletteSummary `json:"palettes"`
	Warnings   int              `json:"warnings"`
	Retained   engine.Inputs    `json:"retained"`
	// Errors lists inputs that were rejected while the request still succeeded.
	Errors []string `json:"errors,omitempty"`
}

type warningsResponse struct {
	Warnings []string `json:"warnings"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func summarize(session *engine.Session) stateResponse {
	state := session.State()
	resp := stateResponse{
		Dimensions: state.Dimensions().String(),
		HasBase:    state.HasBaseImage(),
		Colors:     len(state.Colors()),
		Palettes:   []paletteSummary{},
		Warnings:   len(state.Warnings()),
		Retained:   session.Retained(),
	}
	if ref := state.Reference(); ref != nil {
		resp.Palettes = append(resp.Palettes, paletteSummary{ID: ref.ID, Name: ref.Name, Entries: ref.Len(), Reference: true})
	}
	for _, m := range state.Palettes() {
		resp.Palettes = append(resp.Palettes, paletteSummary{ID: m.ID, Name: m.Name, Entries: m.Len()})
	}
	return resp
}

// errorList flattens an aggregated error into one message per input.
func errorList(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// isInputError reports whether err blames the uploaded data rather than the
// service. Aggregated errors qualify only if every member does.
func isInputError(err error) bool {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		if len(merr.Errors) == 0 {
			return false
		}
		for _, e := range merr.Errors {
			if !isInputError(e) {
				return false
			}
		}
		return true
	}
	var (
		decodeErr    *imaging.DecodeError
		dimensionErr *engine.DimensionMismatchError
		schemaErr    *engine.SchemaError
	)
	return errors.As(err, &decodeErr) || errors.As(err, &dimensionErr) || errors.As(err, &schemaErr)
}

func isAggregate(err error) bool {
	var merr *multierror.Error
	return errors.As(err, &merr)
}

// combine merges errors from separate steps, unwrapping a lone error so it
// keeps its own message.
func combine(errs ...error) error {
	merr := multierror.Append(nil, errs...)
	switch len(merr.Errors) {
	case 0:
		return nil
	case 1:
		return merr.Errors[0]
	}
	return merr
}
