package constants

import "time"

var MatchScoring = struct {
	DefaultWeight         float64
	DefaultPriority       int
	SynonymMultiplier     float64
	MisspellingMultiplier float64
	TopCandidates         int
}{
	DefaultWeight:         10,
	DefaultPriority:       5,
	SynonymMultiplier:     0.8,
	MisspellingMultiplier: 0.6,
	TopCandidates:         5,
}

var DefaultFallback = struct {
	Message string
	Tone    string
}{
	Message: "Üzgünüm, size yardımcı olamıyorum.",
	Tone:    "friendly",
}

var DefaultMenu = struct {
	Message string
	Options []string
}{
	Message: "Merhaba! Size nasıl yardımcı olabilirim?",
	Options: []string{"Fiyatlar", "Hizmetler", "İletişim"},
}

var GuardConfig = struct {
	MaterialityThreshold int64
	UpperBound           int64
	RefusalPhrase        string
}{
	MaterialityThreshold: 100,
	UpperBound:           1_000_000,
	RefusalPhrase:        "Bu konuda yetkilendirilmiş bir bilgim yok.",
}

var SnapshotConfig = struct {
	RefreshInterval time.Duration
	BuildTimeout    time.Duration
	WatchDebounce   time.Duration
	HistoryLimit    int
}{
	RefreshInterval: 10 * time.Second,
	BuildTimeout:    5 * time.Second,
	WatchDebounce:   300 * time.Millisecond,
	HistoryLimit:    20,
}

var LLMDefaults = struct {
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
}{
	BaseURL:     "https://openrouter.ai/api/v1",
	Model:       "liquid/lfm-2.5-1.2b-instruct:free",
	Temperature: 0.1,
	TopP:        0.9,
	MaxTokens:   250,
	Timeout:     15 * time.Second,
}

var CacheTTL = struct {
	VerifiedResponse time.Duration
}{
	VerifiedResponse: 10 * time.Minute,
}

var RedisConfig = struct {
	ReadyTimeout        time.Duration
	InvalidationChannel string
	KeyPrefix           string
}{
	ReadyTimeout:        5 * time.Second,
	InvalidationChannel: "cirak:snapshot:invalidate",
	KeyPrefix:           "cirak:",
}

var ChatInputLimits = struct {
	MaxMessageLength int
}{
	MaxMessageLength: 500,
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	RateLimitTimeout time.Duration
}{
	FailureThreshold: 3,                // opens after 3 consecutive failures
	ResetTimeout:     30 * time.Second, // default wait before a retry
	RateLimitTimeout: 10 * time.Minute, // 429 only
}

var AnalyticsConfig = struct {
	MaxConcurrentWrites int
	WriteTimeout        time.Duration
	DefaultReportDays   int
	TopQueries          int
}{
	MaxConcurrentWrites: 4,
	WriteTimeout:        3 * time.Second,
	DefaultReportDays:   7,
	TopQueries:          20,
}

var WebSocketConfig = struct {
	ReadLimit    int64
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
}{
	ReadLimit:    4096,
	WriteTimeout: 10 * time.Second,
	PongWait:     60 * time.Second,
	PingPeriod:   54 * time.Second, // must be shorter than PongWait
}

var AdminLimits = struct {
	MaxBatchMessages  int
	DefaultIterations int
	MaxIterations     int
	MaxReportDays     int
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	TokenIssuer       string
}{
	MaxBatchMessages:  50,
	DefaultIterations: 100,
	MaxIterations:     1000,
	MaxReportDays:     90,
	ShutdownTimeout:   10 * time.Second,
	ReadHeaderTimeout: 5 * time.Second,
	TokenIssuer:       "cirak-widget",
}
