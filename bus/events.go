package bus

// Type is the dispatch key for event routing. The set of types is closed:
// every event the system exchanges is enumerated below.
type Type string

const (
	TypeTranscriptionRequest Type = "transcription.request"
	TypeGenerationRequest    Type = "generation.request"
	TypePlaybackRequest      Type = "playback.request"
	TypeTranscriptBroadcast  Type = "transcript.broadcast"
	TypeLogNotice            Type = "log.notice"
	TypeMemoryAddRequest     Type = "memory.add"
	TypeMemoryQueryRequest   Type = "memory.query"
	TypeMemoryDeleteRequest  Type = "memory.delete"
)

// Event is an immutable message. Handlers must not mutate event payloads;
// after publish the payload is shared read-only by every handler.
type Event interface {
	Type() Type
}

// TranscriptionRequest asks the transcription service to turn a WAV clip
// into text.
type TranscriptionRequest struct {
	Audio []byte
	Reply *Future[string]
}

func (TranscriptionRequest) Type() Type { return TypeTranscriptionRequest }

// GenerationRequest asks the music service for a generated WAV clip.
type GenerationRequest struct {
	Prompt   string
	Duration int // seconds
	Reply    *Future[[]byte]
}

func (GenerationRequest) Type() Type { return TypeGenerationRequest }

// PlaybackRequest asks the voice client to play audio in the connected
// channel. The reply settles once playback has been initiated, not when it
// has finished.
type PlaybackRequest struct {
	Audio []byte
	Reply *Future[struct{}]
}

func (PlaybackRequest) Type() Type { return TypePlaybackRequest }

// TranscriptBroadcast carries a finished transcription to every connected
// listener.
type TranscriptBroadcast struct {
	Speaker string
	Text    string
}

func (TranscriptBroadcast) Type() Type { return TypeTranscriptBroadcast }

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LogNotice is a fire-and-forget status message from any service.
type LogNotice struct {
	Message string
	Level   Level
}

func (LogNotice) Type() Type { return TypeLogNotice }

// MemoryEntry is one stored memory, as returned by a query.
type MemoryEntry struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Rank     float64           `json:"rank,omitempty"`
}

// MemoryAddRequest stores a memory and replies with its id.
type MemoryAddRequest struct {
	Text     string
	Metadata map[string]string
	Reply    *Future[string]
}

func (MemoryAddRequest) Type() Type { return TypeMemoryAddRequest }

// MemoryQueryRequest searches stored memories.
type MemoryQueryRequest struct {
	Query string
	Limit int
	Reply *Future[[]MemoryEntry]
}

func (MemoryQueryRequest) Type() Type { return TypeMemoryQueryRequest }

// MemoryDeleteRequest removes a memory by id.
type MemoryDeleteRequest struct {
	ID    string
	Reply *Future[struct{}]
}

func (MemoryDeleteRequest) Type() Type { return TypeMemoryDeleteRequest }
