package protocol

import "encoding/json"

// Message is a typed catalog payload.
type Message interface {
	MessageType() MessageType
}

// MainToSubMessage is the sealed set of payloads Main may send.
type MainToSubMessage interface {
	Message
	mainToSub()
}

// SubToMainMessage is the sealed set of payloads Sub may send.
type SubToMainMessage interface {
	Message
	subToMain()
}

// PlayerData is one seat in a hand.
type PlayerData struct {
	Position    int     `json:"position"`
	PlayerName  string  `json:"playerName"`
	StackAmount float64 `json:"stackAmount"`
	BBs         float64 `json:"bbs"`
}

// FieldMapping binds a composition field to a data source column.
type FieldMapping struct {
	FieldID        string `json:"fieldId"`
	TargetFieldKey string `json:"targetFieldKey"`
	SlotIndex      *int   `json:"slotIndex,omitempty"`
	SourceTable    string `json:"sourceTable"`
	SourceColumn   string `json:"sourceColumn"`
	SourceJoin     string `json:"sourceJoin,omitempty"`
	Transform      string `json:"transform"`
	CurrentValue   string `json:"currentValue,omitempty"`
}

// HandData is the hand snapshot attached to a cue item.
type HandData struct {
	HandNum    int          `json:"handNum"`
	SessionID  string       `json:"sessionId"`
	Players    []PlayerData `json:"players"`
	BoardCards []string     `json:"boardCards"`
	Pot        float64      `json:"pot"`
	BlindLevel string       `json:"blindLevel"`
}

type CueItemSelected struct {
	CueItemID         string         `json:"cueItemId"`
	HandID            string         `json:"handId"`
	CompositionName   string         `json:"compositionName"`
	HandData          HandData       `json:"handData"`
	SuggestedMappings []FieldMapping `json:"suggestedMappings,omitempty"`
}

type CueItemCancelled struct {
	CueItemID string `json:"cueItemId"`
}

type HandUpdated struct {
	HandID        string       `json:"handId"`
	SessionID     string       `json:"sessionId"`
	HandNum       int          `json:"handNum"`
	ChangedFields []string     `json:"changedFields"`
	Players       []PlayerData `json:"players"`
}

type GameType string

const (
	GameCash       GameType = "cash"
	GameTournament GameType = "tournament"
)

type SessionChanged struct {
	SessionID string   `json:"sessionId"`
	GameType  GameType `json:"gameType"`
	EventID   string   `json:"eventId,omitempty"`
}

// RenderRequest asks Sub to render a composition. GfxData is the
// render_gfx_data_v3 document and is relayed untouched.
type RenderRequest struct {
	RequestID       string          `json:"requestId"`
	CompositionName string          `json:"compositionName"`
	HandID          string          `json:"handId"`
	Priority        int             `json:"priority"`
	GfxData         json.RawMessage `json:"gfxData"`
}

type MainStatus string

const (
	MainConnected MainStatus = "connected"
	MainBusy      MainStatus = "busy"
)

type Heartbeat struct {
	MainStatus    MainStatus `json:"mainStatus"`
	ActiveSession string     `json:"activeSession,omitempty"`
}

type RenderJobStatus string

const (
	RenderPending   RenderJobStatus = "pending"
	RenderQueued    RenderJobStatus = "queued"
	RenderRendering RenderJobStatus = "rendering"
	RenderCompleted RenderJobStatus = "completed"
	RenderFailed    RenderJobStatus = "failed"
	RenderCancelled RenderJobStatus = "cancelled"
)

type RenderStatusUpdate struct {
	JobID              string          `json:"jobId"`
	RequestID          string          `json:"requestId,omitempty"`
	Status             RenderJobStatus `json:"status"`
	Progress           float64         `json:"progress"`
	EstimatedRemaining *float64        `json:"estimatedRemaining,omitempty"`
}

// RenderOutput describes the rendered file.
type RenderOutput struct {
	OutputID     string  `json:"outputId,omitempty"`
	OutputPath   string  `json:"outputPath"`
	Duration     float64 `json:"duration"`
	FrameCount   int     `json:"frameCount"`
	FileSize     int64   `json:"fileSize"`
	Codec        string  `json:"codec,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	FrameRate    float64 `json:"frameRate,omitempty"`
	DownloadURL  string  `json:"downloadUrl,omitempty"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
}

type RenderComplete struct {
	JobID     string       `json:"jobId"`
	RequestID string       `json:"requestId,omitempty"`
	Output    RenderOutput `json:"output"`
}

type RenderErrorCode string

const (
	ErrCodeSlotMapping         RenderErrorCode = "SLOT_MAPPING_ERROR"
	ErrCodeCompositionNotFound RenderErrorCode = "COMPOSITION_NOT_FOUND"
	ErrCodeDataFetch           RenderErrorCode = "DATA_FETCH_ERROR"
	ErrCodeAEScript            RenderErrorCode = "AE_SCRIPT_ERROR"
	ErrCodeRenderTimeout       RenderErrorCode = "RENDER_TIMEOUT"
	ErrCodeOutputPath          RenderErrorCode = "OUTPUT_PATH_ERROR"
	ErrCodeUnknown             RenderErrorCode = "UNKNOWN_ERROR"
)

type RenderError struct {
	JobID        string          `json:"jobId"`
	RequestID    string          `json:"requestId,omitempty"`
	ErrorCode    RenderErrorCode `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
	Retryable    bool            `json:"retryable"`
}

type MappingChanged struct {
	CompositionName string   `json:"compositionName"`
	MappingID       string   `json:"mappingId"`
	ChangedFields   []string `json:"changedFields"`
}

type CompositionSelected struct {
	CompositionName string `json:"compositionName"`
	Category        string `json:"category"`
	FieldCount      int    `json:"fieldCount"`
}

type SubStatus string

const (
	SubReady     SubStatus = "ready"
	SubBusy      SubStatus = "busy"
	SubRendering SubStatus = "rendering"
)

type HeartbeatAck struct {
	SubStatus   SubStatus `json:"subStatus"`
	QueueLength int       `json:"queueLength"`
	ActiveJobs  int       `json:"activeJobs"`
}

func (CueItemSelected) MessageType() MessageType     { return TypeCueItemSelected }
func (CueItemCancelled) MessageType() MessageType    { return TypeCueItemCancelled }
func (HandUpdated) MessageType() MessageType         { return TypeHandUpdated }
func (SessionChanged) MessageType() MessageType      { return TypeSessionChanged }
func (RenderRequest) MessageType() MessageType       { return TypeRenderRequest }
func (Heartbeat) MessageType() MessageType           { return TypeHeartbeat }
func (RenderStatusUpdate) MessageType() MessageType  { return TypeRenderStatusUpdate }
func (RenderComplete) MessageType() MessageType      { return TypeRenderComplete }
func (RenderError) MessageType() MessageType         { return TypeRenderError }
func (MappingChanged) MessageType() MessageType      { return TypeMappingChanged }
func (CompositionSelected) MessageType() MessageType { return TypeCompositionSelected }
func (HeartbeatAck) MessageType() MessageType        { return TypeHeartbeatAck }

func (CueItemSelected) mainToSub()  {}
func (CueItemCancelled) mainToSub() {}
func (HandUpdated) mainToSub()      {}
func (SessionChanged) mainToSub()   {}
func (RenderRequest) mainToSub()    {}
func (Heartbeat) mainToSub()        {}

func (RenderStatusUpdate) subToMain()  {}
func (RenderComplete) subToMain()      {}
func (RenderError) subToMain()         {}
func (MappingChanged) subToMain()      {}
func (CompositionSelected) subToMain() {}
func (HeartbeatAck) subToMain()        {}
