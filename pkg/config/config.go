// Copyright 2025 VeloxVOIP.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils/guid"

	"github.com/veloxvoip/callengine/pkg/errors"
)

const (
	DefaultListenPort = 8080

	DefaultMaxConversationLength    = 100
	DefaultMaxSessionDuration       = 15 * time.Minute
	DefaultMaxInappropriateAttempts = 5
	DefaultRateLimitWindow          = time.Minute
	DefaultMaxRequestsPerWindow     = 10000

	DefaultVoiceID = "tiffany"
)

var (
	DefaultAllowedTopics = []string{
		"car rental", "vehicle", "booking", "reservation", "cancellation",
		"pricing", "policy", "insurance", "age requirement", "license",
		"pickup", "return", "extension", "discount", "offer", "hours",
		"location", "contact", "support", "help", "question",
	}
	DefaultBlockedKeywords = []string{
		"hack", "exploit", "bypass", "admin", "root", "password",
		"sql injection", "xss", "ddos", "malware", "virus",
		"illegal", "fraud", "scam", "steal", "break", "destroy",
	}
	DefaultEmergencyKeywords = []string{
		"emergency", "urgent", "help", "police", "fire", "medical",
		"accident", "injury", "danger", "threat", "violence",
	}
)

// TwilioConfig holds carrier control-API credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"` // env TWILIO_ACCOUNT_SID
	APISID     string `yaml:"api_sid"`     // env TWILIO_API_SID
	APISecret  string `yaml:"api_secret"`  // env TWILIO_API_SECRET
	FromNumber string `yaml:"from_number"`
	BaseURL    string `yaml:"base_url"` // override for tests
}

// StreamConfig configures the bidirectional speech-to-speech stream.
type StreamConfig struct {
	URL     string `yaml:"url"` // wss endpoint of the model stream
	APIKey  string `yaml:"api_key"`
	ModelID string `yaml:"model_id"`

	// Inference parameters sent in sessionStart.
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
	Temperature float64 `yaml:"temperature"`
}

// GuardrailConfig bounds a single conversation.
type GuardrailConfig struct {
	MaxConversationLength    int           `yaml:"max_conversation_length"`
	MaxSessionDuration       time.Duration `yaml:"max_session_duration"`
	MaxInappropriateAttempts int           `yaml:"max_inappropriate_attempts"`
	RateLimitWindow          time.Duration `yaml:"rate_limit_window"`
	MaxRequestsPerWindow     int           `yaml:"max_requests_per_window"`

	AllowedTopics     []string `yaml:"allowed_topics"`
	BlockedKeywords   []string `yaml:"blocked_keywords"`
	EmergencyKeywords []string `yaml:"emergency_keywords"`
}

// RecordingConfig controls call recording and transcript persistence.
type RecordingConfig struct {
	Enabled             bool   `yaml:"enabled"`
	EnableTranscription bool   `yaml:"enable_transcription"`
	BaseDir             string `yaml:"base_dir"`
	StatusCallbackURL   string `yaml:"status_callback_url"`
	TranscriptWebhook   string `yaml:"transcript_webhook_url"`
	PickupWebhook       string `yaml:"pickup_webhook_url"`
	RetentionDays       int    `yaml:"retention_days"`
}

// AgentConfig describes the voice agent persona.
type AgentConfig struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	VoiceID      string `yaml:"voice_id"`

	// GreetingAudio optionally points at a raw PCM16 file streamed into a new
	// session so the agent speaks first.
	GreetingAudio string `yaml:"greeting_audio"`
}

type Config struct {
	ListenPort     int `yaml:"listen_port"` // media stream + TwiML + status routes
	HealthPort     int `yaml:"health_port"`
	PrometheusPort int `yaml:"prometheus_port"`
	PProfPort      int `yaml:"pprof_port"`

	// PublicHost is the externally reachable host for media stream URLs.
	// Falls back to the incoming request's Host header when empty.
	PublicHost string `yaml:"public_host"`

	// MaxConcurrentCalls caps bridged calls before the health endpoint
	// reports the node as under load. Zero means no cap.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`

	// AllowedSourceIPs restricts the carrier webhook routes to the given
	// IPs or CIDR ranges. Empty means any source is accepted.
	AllowedSourceIPs []string `yaml:"allowed_source_ips"`

	Logging logger.Config `yaml:"logging"`

	Twilio     TwilioConfig    `yaml:"twilio"`
	Stream     StreamConfig    `yaml:"stream"`
	Guardrails GuardrailConfig `yaml:"guardrails"`
	Recording  RecordingConfig `yaml:"recording"`
	Agent      AgentConfig     `yaml:"agent"`

	// Departments maps a department name to a dial destination for transfers.
	Departments       map[string]string `yaml:"departments"`
	DefaultDepartment string            `yaml:"default_department"`
	EmergencyNumber   string            `yaml:"emergency_number"`
	SIPEndpoint       string            `yaml:"sip_endpoint"` // escalation fallback target

	// internal
	ServiceName string `yaml:"-"`
	NodeID      string // Do not provide, will be overwritten
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		ServiceName: "callengine",
		Twilio: TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			APISID:     os.Getenv("TWILIO_API_SID"),
			APISecret:  os.Getenv("TWILIO_API_SECRET"),
		},
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}
	return conf, nil
}

func (c *Config) Init() error {
	c.NodeID = guid.New("NE_")

	if c.ListenPort == 0 {
		c.ListenPort = DefaultListenPort
	}

	g := &c.Guardrails
	if g.MaxConversationLength == 0 {
		g.MaxConversationLength = DefaultMaxConversationLength
	}
	if g.MaxSessionDuration == 0 {
		g.MaxSessionDuration = DefaultMaxSessionDuration
	}
	if g.MaxInappropriateAttempts == 0 {
		g.MaxInappropriateAttempts = DefaultMaxInappropriateAttempts
	}
	if g.RateLimitWindow == 0 {
		g.RateLimitWindow = DefaultRateLimitWindow
	}
	if g.MaxRequestsPerWindow == 0 {
		g.MaxRequestsPerWindow = DefaultMaxRequestsPerWindow
	}
	if g.AllowedTopics == nil {
		g.AllowedTopics = DefaultAllowedTopics
	}
	if g.BlockedKeywords == nil {
		g.BlockedKeywords = DefaultBlockedKeywords
	}
	if g.EmergencyKeywords == nil {
		g.EmergencyKeywords = DefaultEmergencyKeywords
	}

	s := &c.Stream
	if s.MaxTokens == 0 {
		s.MaxTokens = 1024
	}
	if s.TopP == 0 {
		s.TopP = 0.9
	}
	if s.Temperature == 0 {
		s.Temperature = 0.7
	}

	if c.Agent.VoiceID == "" {
		c.Agent.VoiceID = DefaultVoiceID
	}
	if c.Recording.BaseDir == "" {
		c.Recording.BaseDir = "./recordings"
	}
	if c.Recording.RetentionDays == 0 {
		c.Recording.RetentionDays = 30
	}
	if c.DefaultDepartment == "" {
		c.DefaultDepartment = "support"
	}

	return c.InitLogger()
}

func (c *Config) InitLogger(values ...interface{}) error {
	zl, err := logger.NewZapLogger(&c.Logging)
	if err != nil {
		return err
	}

	values = append(c.GetLoggerValues(), values...)
	l := zl.WithValues(values...)
	logger.SetLogger(l, c.ServiceName)

	return nil
}

// To use with zap logger
func (c *Config) GetLoggerValues() []interface{} {
	if c.NodeID == "" {
		return nil
	}
	return []interface{}{"nodeID", c.NodeID}
}

// ResolveDepartment maps a department name to a dial destination, falling
// back to the default department.
func (c *Config) ResolveDepartment(department string) (string, bool) {
	if dest, ok := c.Departments[department]; ok {
		return dest, true
	}
	dest, ok := c.Departments[c.DefaultDepartment]
	return dest, ok
}
