package types

import "errors"

// Input rejected before any analysis
var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrTooSmall      = errors.New("file too small")
	ErrTooLarge      = errors.New("file too large")
	ErrDecode        = errors.New("decode error")
)

// Detection stage outcomes
var (
	ErrNoFaceDetected        = errors.New("no face detected")
	ErrMultipleFacesDetected = errors.New("multiple faces detected")
)

// Quality stage outcomes
var (
	ErrImageTooSmall = errors.New("image too small")
	ErrPoorQuality   = errors.New("poor quality")
)

// Crop and compression stage outcomes
var (
	ErrCropOutOfBounds = errors.New("crop out of bounds")
	ErrInvalidGeometry = errors.New("invalid crop geometry")
	// ErrCompressionBudgetUnreachable is never returned by Compress; it is kept for callers
	// that want to turn an OverBudget result into a hard failure.
	ErrCompressionBudgetUnreachable = errors.New("compression budget unreachable")
)

// Crop session lifecycle
var (
	ErrSessionNotFound = errors.New("crop session not found")
	ErrSessionClosed   = errors.New("crop session closed")
)
