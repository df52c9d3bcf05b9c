package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrThrottled indicates Rekognition rejected the call for exceeding the account's rate
	ErrThrottled = errors.New("rekognition request throttled")

	// ErrUnknownDimensions indicates the frame header could not be decoded to size boxes
	ErrUnknownDimensions = errors.New("cannot read image dimensions")
)
