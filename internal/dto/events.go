package dto

// ProgressEvent reports how far a running pipeline has come.
type ProgressEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Stage     string `json:"stage"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Timestamp string `json:"timestamp"`
}

// VerdictEvent is published once a prediction finishes.
type VerdictEvent struct {
	Type            string  `json:"type"`
	RequestID       string  `json:"request_id"`
	Filename        string  `json:"filename"`
	Result          string  `json:"result"`
	Confidence      float64 `json:"confidence"`
	FakeProbability float64 `json:"fake_probability"`
	FramesSampled   int     `json:"frames_sampled"`
	FacesDetected   int     `json:"faces_detected"`
	DurationMs      int64   `json:"duration_ms"`
	Timestamp       string  `json:"timestamp"`
}

const (
	EventProgress = "progress"
	EventVerdict  = "verdict"
)
