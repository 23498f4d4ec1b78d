package models

import (
	"encoding/json"
	"time"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Profile represents the logged-in user's profile. Known fields are typed;
// anything else the server sends is kept in Extra.
type Profile struct {
	Avatar    string `json:"avatar,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// profileAlias avoids recursion in the custom JSON round-trip below.
type profileAlias Profile

var profileKnownKeys = map[string]bool{
	"avatar":     true,
	"first_name": true,
	"last_name":  true,
	"username":   true,
	"email":      true,
}

// UnmarshalJSON captures unknown fields into Extra.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var alias profileAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if profileKnownKeys[key] {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}

	*p = Profile(alias)
	return nil
}

// MarshalJSON writes known fields and Extra as one flat object.
func (p Profile) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(profileAlias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range p.Extra {
		if _, exists := merged[key]; !exists {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// Inference job statuses reported by the API
const (
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Envelope statuses on generate responses
const (
	GenerateStatusSuccess  = "success"
	GenerateStatusAccepted = "accepted"
)

// GenerateRequest is the body of POST /ai/generate
type GenerateRequest struct {
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

// GenerateResponse is the envelope of POST /ai/generate. A 200 carries
// status "success" and a result; a 202 carries status "accepted" and a job id.
type GenerateResponse struct {
	Status string       `json:"status"`
	Data   GenerateData `json:"data"`
}

type GenerateData struct {
	Result string `json:"result"`
	JobID  string `json:"job_id"`
}

// JobStatusResponse is the envelope of GET /ai/jobs/{id}/status
type JobStatusResponse struct {
	Status string        `json:"status"`
	Data   JobStatusData `json:"data"`
}

type JobStatusData struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// AuthResponse is the envelope returned by login and register. Some
// deployments wrap token/user in data, older ones return them top level.
type AuthResponse struct {
	Token string   `json:"token"`
	User  *Profile `json:"user"`
	Data  *struct {
		Token string   `json:"token"`
		User  *Profile `json:"user"`
	} `json:"data"`
}

// Credentials returns the token and profile regardless of envelope shape.
func (r *AuthResponse) Credentials() (string, *Profile) {
	if r.Data != nil && r.Data.Token != "" {
		return r.Data.Token, r.Data.User
	}
	return r.Token, r.User
}

// CacheEntry represents a cached inference response
type CacheEntry struct {
	Prompt    string
	Answer    string
	CreatedAt time.Time
}
