package transcode

import (
	"errors"
	"fmt"
)

// ErrUnsupportedInput means the input has no file extension to go by.
var ErrUnsupportedInput = errors.New("does not seem to be ffmpeg-compatible")

// DownloadError is returned when fetching the source media fails.
type DownloadError struct {
	Source string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.Source, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

var _ error = (*DownloadError)(nil)

// Stage tells which external step of the pipeline failed.
type Stage string

const (
	StageExtract Stage = "extract"
	StageEncode  Stage = "encode"
)

// ConversionError is returned when an external tool exits unsuccessfully.
// Output holds what the tool printed, trimmed for display.
type ConversionError struct {
	Stage  Stage
	Tool   string
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

var _ error = (*ConversionError)(nil)
