package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNothingToPrint    = errors.New("nothing to print")
	ErrBridgeUnavailable = errors.New("local print service is not running")
	ErrNoPrinter         = errors.New("no printer found")
	ErrEncoding          = errors.New("barcode encoding failed")
	ErrRenderSurface     = errors.New("cannot create label surface")
	ErrInvalidPrice      = errors.New("price must not be negative")
	ErrCancelled         = errors.New("cancelled by operator")
	ErrPrintInProgress   = errors.New("a print job is in progress")
	ErrDialogClosed      = errors.New("print dialog is not open")
	ErrUnknownCode       = errors.New("code is not part of this print job")
)

// ErrorKind groups errors by how they are surfaced to the operator.
type ErrorKind string

const (
	KindNothingToPrint    ErrorKind = "nothing_to_print"
	KindBridgeUnavailable ErrorKind = "bridge_unavailable"
	KindNoPrinter         ErrorKind = "no_printer"
	KindRender            ErrorKind = "render_error"
	KindCancelled         ErrorKind = "cancelled"
	KindInProgress        ErrorKind = "print_in_progress"
	KindInvalid           ErrorKind = "invalid_request"
	KindOther             ErrorKind = "error"
)

const bridgeRemediation = "Start the local print service on this computer (check that it is running and not blocked by a firewall), then try again."

// RenderError carries the code of the label that failed to render.
type RenderError struct {
	Code  string
	Cause error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render label %q: %v", e.Code, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNothingToPrint):
		return KindNothingToPrint
	case errors.Is(err, ErrBridgeUnavailable):
		return KindBridgeUnavailable
	case errors.Is(err, ErrNoPrinter):
		return KindNoPrinter
	case errors.Is(err, ErrEncoding), errors.Is(err, ErrRenderSurface), errors.Is(err, ErrInvalidPrice):
		return KindRender
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrPrintInProgress):
		return KindInProgress
	case errors.Is(err, ErrDialogClosed), errors.Is(err, ErrUnknownCode):
		return KindInvalid
	default:
		return KindOther
	}
}

// OperatorMessage is the text shown in the blocking prompt for err.
func OperatorMessage(err error) string {
	switch Classify(err) {
	case "":
		return ""
	case KindNothingToPrint:
		return "Nothing to print: none of the selected batches has a barcode."
	case KindBridgeUnavailable:
		return "The local print service is not running. " + bridgeRemediation
	case KindNoPrinter:
		return "No printer found. Install or select a label printer and try again."
	default:
		return err.Error()
	}
}
