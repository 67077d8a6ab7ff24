// Package models defines the domain models for the LLM proxy gateway.
package models

import "time"

// Rule is one field/operator/value test evaluated by the rules package.
// Value is whatever JSON-decoded literal the rule author supplied (string,
// float64, bool, []any, nil).
type Rule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// RuleLogic combines a RuleSet's rules.
type RuleLogic string

const (
	RuleLogicAND RuleLogic = "AND"
	RuleLogicOR  RuleLogic = "OR"
)

// RuleSet is a (possibly empty) set of Rules and the logic joining them.
// Deserialized from a JSON blob stored on a ModelMapping or
// ModelMappingProvider row; evaluated by the rules package.
type RuleSet struct {
	Rules []Rule    `json:"rules"`
	Logic RuleLogic `json:"logic"`
}

// IsEmpty reports whether the ruleset has no rules to evaluate.
func (rs *RuleSet) IsEmpty() bool {
	return rs == nil || len(rs.Rules) == 0
}

// NormalizedLogic defaults an unset/unknown logic to AND.
func (rs *RuleSet) NormalizedLogic() RuleLogic {
	if rs != nil && rs.Logic == RuleLogicOR {
		return RuleLogicOR
	}
	return RuleLogicAND
}

// Protocol identifies the wire dialect a provider or an ingress request
// speaks.
type Protocol string

const (
	ProtocolOpenAI          Protocol = "openai"
	ProtocolAnthropic       Protocol = "anthropic"
	ProtocolOpenAIResponses Protocol = "openai_responses"
	ProtocolGemini          Protocol = "gemini"
)

// APIType narrows a provider to the family of endpoint it serves.
type APIType string

const (
	APITypeChat       APIType = "chat"
	APITypeCompletion APIType = "completion"
	APITypeEmbedding  APIType = "embedding"
)

// Provider is a configured upstream (e.g. a specific OpenAI or Anthropic
// account). APIKey is always the decrypted plaintext in memory; the
// encrypted-at-rest form only exists in the repository's storage column.
type Provider struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	BaseURL       string            `json:"base_url"`
	Protocol      Protocol          `json:"protocol"`
	APIType       APIType           `json:"api_type"`
	APIKey        string            `json:"-"`
	ExtraHeaders  map[string]string `json:"extra_headers,omitempty"`
	ProxyEnabled  bool              `json:"proxy_enabled"`
	ProxyURL      string            `json:"proxy_url,omitempty"`
	IsActive      bool              `json:"is_active"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ModelMapping is keyed by the model name a client sends. It owns a RuleSet
// evaluated once per request and fans out to one or more
// ModelMappingProvider rows.
type ModelMapping struct {
	RequestedModel string    `json:"requested_model"`
	Strategy       string    `json:"strategy"` // only "round_robin" is implemented
	MatchingRules  *RuleSet  `json:"matching_rules,omitempty"`
	Capabilities   string    `json:"capabilities,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ModelMappingProvider is the many-to-many link between a ModelMapping and a
// Provider: one candidate entry. Duplicate (RequestedModel, ProviderID)
// pairs are legal — they represent parallel candidate slots.
type ModelMappingProvider struct {
	ID              int64     `json:"id"`
	RequestedModel  string    `json:"requested_model"`
	ProviderID      int64     `json:"provider_id"`
	TargetModelName string    `json:"target_model_name"`
	ProviderRules   *RuleSet  `json:"provider_rules,omitempty"`
	Priority        int       `json:"priority"` // smaller = higher priority
	Weight          int       `json:"weight"`   // >= 1
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// APIKey authenticates ingress callers. KeyValue is only ever non-empty at
// creation time; afterwards the repository stores only its hash plus a
// display prefix.
type APIKey struct {
	ID         int64      `json:"id"`
	KeyName    string     `json:"key_name"`
	KeyValue   string     `json:"key_value,omitempty"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// RequestLogEntry is the write-side shape ProxyService builds for one
// completed (or definitively failed) ingress request.
type RequestLogEntry struct {
	TraceID              string
	RequestTime          time.Time
	APIKeyID             *int64
	APIKeyName           string
	RequestedModel       string
	TargetModel           string
	ProviderID           *int64
	ProviderName         string
	RetryCount           int
	MatchedProviderCount int
	FirstByteDelayMS     *int64
	TotalTimeMS          int64
	InputTokens          int
	OutputTokens         int
	RequestHeaders       map[string]string
	RequestBody          string
	ResponseStatus       int
	ResponseBody         string
	ErrorInfo            string
	IsStream             bool
	RequestProtocol      string
	SupplierProtocol     string
	ConvertedRequestBody string
	UpstreamResponseBody string
	ResponseHeaders      map[string]string
}

// RequestLog is a persisted request log row.
type RequestLog struct {
	ID int64
	RequestLogEntry
}

// RequestLogQuery filters RequestLog.List, mirroring the admin log-listing
// surface the original exposes (out of scope to build a handler for, but the
// repository contract is exercised by ProxyService's own log write and is
// useful for tests and any future admin surface).
type RequestLogQuery struct {
	StartTime        *time.Time
	EndTime          *time.Time
	RequestedModel    *string
	ProviderName      *string
	StatusMin         *int
	StatusMax         *int
	HasError          *bool
	APIKeyID          *int64
	RetryCountMin     *int
	RetryCountMax     *int
	InputTokensMin    *int
	OutputTokensMin   *int
	Page              int // 1-based, default 1
	PageSize          int // default 20, max 100
	SortBy            string
	SortOrder         string // "asc" | "desc"
}

// TokenUsage is the per-request token accounting carried on RequestContext.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// TotalTokens is a computed convenience, not stored directly.
func (t TokenUsage) TotalTokens() int { return t.InputTokens + t.OutputTokens }

// RequestContext is the ephemeral per-request value RuleEvaluator resolves
// field paths against.
type RequestContext struct {
	CurrentModel string
	Headers      map[string]string // lowercased keys
	RequestBody  map[string]any
	TokenUsage   TokenUsage
}

// CandidateProvider is one ranked, rule-matched forwarding target produced
// by RuleEngine.
type CandidateProvider struct {
	ProviderID   int64
	ProviderName string
	BaseURL      string
	Protocol     Protocol
	APIKey       string
	ExtraHeaders map[string]string
	TargetModel  string
	Priority     int
	Weight       int
}
