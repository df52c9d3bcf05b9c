package rekognition

// Config holds configuration for the AWS Rekognition detector
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// MinConfidence drops detections Rekognition is less sure about (0-100)
	MinConfidence float32

	// MinQuality drops blurry or dark faces, see qualityScore (0-1)
	MinQuality float64
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MinConfidence: 90,
		MinQuality:    0.3,
	}
}
