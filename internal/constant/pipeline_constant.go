package constant

// Turn roles
const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// Turn modalities
const (
	TurnModalityVoice = "voice"
	TurnModalityText  = "text"
)

// Pipeline stages
const (
	StageStt      = "stt"
	StageGenerate = "generate"
	StageTts      = "tts"
)

// Client -> server events
const (
	EventConnect      = "connect"
	EventVoiceMessage = "voice_message"
	EventTextMessage  = "text_message"
	EventCancel       = "cancel"
)

// Server -> client events
const (
	EventConnected     = "connected"
	EventTranscript    = "transcript"
	EventResponse      = "response"
	EventResponseChunk = "response_chunk"
	EventError         = "error"
)

// Error codes
const (
	ErrCodeAuth             = "AUTH_ERROR"
	ErrCodeProtocol         = "PROTOCOL_ERROR"
	ErrCodeSttFailed        = "STT_FAILED"
	ErrCodeGenerationFailed = "GENERATION_FAILED"
	ErrCodeTtsFailed        = "TTS_FAILED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeSessionExpired   = "SESSION_EXPIRED"
)

// FallbackText tells the client to prompt for typed input instead of voice.
const FallbackText = "text"

// ServerCapabilities advertised in the connected acknowledgment.
var ServerCapabilities = []string{"voice", "text", "streaming", "tts", "barge_in"}

// SummarizeHistoryPromptV1 condenses overflowed history into one assistant turn.
const SummarizeHistoryPromptV1 = `Summarize the following conversation in at most 150 words.
Keep every fact, name, number and unresolved question the user may refer back to.
Answer with the summary only, no preamble.

Conversation:
%s`
