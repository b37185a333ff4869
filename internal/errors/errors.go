// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrOutOfRange        = errors.New("series offset out of range")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrNotRunning        = errors.New("run not started")
	ErrNoData            = errors.New("no data loaded")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrRunIncomplete     = errors.New("run cancelled before completion")
)

// CausalityError reports a strategy reading a future offset. It is always a
// programming error and aborts the run.
type CausalityError struct {
	Series string
	Step   int
	Offset int
}

func (e *CausalityError) Error() string {
	return fmt.Sprintf("causality violation: series %s read offset %+d at step %d", e.Series, e.Offset, e.Step)
}

// Unwrap makes causality violations match ErrOutOfRange: a future offset is
// also an offset that references a step not yet emitted.
func (e *CausalityError) Unwrap() error {
	return ErrOutOfRange
}

// NewCausalityError creates a new CausalityError.
func NewCausalityError(series string, step, offset int) *CausalityError {
	return &CausalityError{Series: series, Step: step, Offset: offset}
}

// IndicatorParamError reports an invalid indicator parameter. It is raised at
// registration time, before a run starts.
type IndicatorParamError struct {
	Indicator string
	Param     string
	Value     interface{}
}

func (e *IndicatorParamError) Error() string {
	return fmt.Sprintf("invalid indicator parameter: %s %s=%v", e.Indicator, e.Param, e.Value)
}

// NewIndicatorParamError creates a new IndicatorParamError.
func NewIndicatorParamError(indicator, param string, value interface{}) *IndicatorParamError {
	return &IndicatorParamError{Indicator: indicator, Param: param, Value: value}
}

// FundsError reports an order whose notional exceeds available buying power.
// The order is rejected whole and produces no fill.
type FundsError struct {
	Instrument string
	Required   float64
	Available  float64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: need %.2f, have %.2f", e.Instrument, e.Required, e.Available)
}

func (e *FundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// NewFundsError creates a new FundsError.
func NewFundsError(instrument string, required, available float64) *FundsError {
	return &FundsError{Instrument: instrument, Required: required, Available: available}
}

// DataGapError reports a missing bar in strict-data mode. Outside strict mode
// gaps are tolerated as non-trading steps.
type DataGapError struct {
	Instrument string
	Step       int
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap: %s has no bar at step %d", e.Instrument, e.Step)
}

// NewDataGapError creates a new DataGapError.
func NewDataGapError(instrument string, step int) *DataGapError {
	return &DataGapError{Instrument: instrument, Step: step}
}

// AdapterError reports a backend that cannot represent a feature the caller
// needs. It is surfaced at load time so runs fail fast.
type AdapterError struct {
	Backend string
	Feature string
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("backend %s does not support %s", e.Backend, e.Feature)
}

// NewAdapterError creates a new AdapterError.
func NewAdapterError(backend, feature string) *AdapterError {
	return &AdapterError{Backend: backend, Feature: feature}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
