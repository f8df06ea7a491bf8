package recording

// Job and event identifiers
const (
	JobType     = "RecordingPipeline"
	EventType   = "recording.start"
	InstanceKey = "meetingId"
)

// Step names in execution order
const (
	StepValidate = "validate"
	StepUpload   = "upload"
	StepNotify   = "notify"
)

// NATS subjects
const (
	DefaultEgressSubject    = "recording.egress.start"
	DefaultCompletedSubject = "recording.completed"
)

// Recording layouts accepted by the recorder service
const (
	LayoutSpeaker       = "speaker"
	LayoutGrid          = "grid"
	LayoutSingleSpeaker = "single-speaker"
)

var validLayouts = map[string]bool{
	LayoutSpeaker:       true,
	LayoutGrid:          true,
	LayoutSingleSpeaker: true,
}

// StartRequest is the payload of a recording.start event
type StartRequest struct {
	MeetingID   string `json:"meetingId"`
	RoomName    string `json:"roomName,omitempty"`
	RequestedBy string `json:"requestedBy,omitempty"`
	Layout      string `json:"layout,omitempty"`
}

// ValidatedRequest is the result of the validate step
type ValidatedRequest struct {
	MeetingID   string `json:"meetingId"`
	RoomName    string `json:"roomName"`
	RequestedBy string `json:"requestedBy,omitempty"`
	Layout      string `json:"layout"`
	ObjectKey   string `json:"objectKey"`
}

// EgressRequest asks the recorder service to capture a room and upload it
type EgressRequest struct {
	// IdempotencyKey lets the recorder return the existing egress when an
	// upload attempt is repeated.
	IdempotencyKey string `json:"idempotencyKey"`
	MeetingID      string `json:"meetingId"`
	RoomName       string `json:"roomName"`
	Layout         string `json:"layout"`
	ObjectKey      string `json:"objectKey"`
}

// EgressReply is the recorder service reply
type EgressReply struct {
	EgressID  string `json:"egressId,omitempty"`
	Location  string `json:"location,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// UploadResult is the result of the upload step
type UploadResult struct {
	EgressID  string `json:"egressId"`
	ObjectKey string `json:"objectKey"`
	Location  string `json:"location"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Completed is published once a recording is stored
type Completed struct {
	InstanceID  string `json:"instanceId"`
	MeetingID   string `json:"meetingId"`
	RoomName    string `json:"roomName"`
	RequestedBy string `json:"requestedBy,omitempty"`
	EgressID    string `json:"egressId"`
	ObjectKey   string `json:"objectKey"`
	Location    string `json:"location"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// NotifyResult is the result of the notify step
type NotifyResult struct {
	Subject   string `json:"subject"`
	MeetingID string `json:"meetingId"`
}
