package models

import "time"

// Chunk is a bounded slice of ingested document text, the unit of indexing.
type Chunk struct {
	Source string
	Seq    int
	Text   string
	Path   string
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Tier names a bucket of generation parameters.
type Tier string

const (
	TierVeryShort Tier = "very_short"
	TierDetailed  Tier = "detailed"
	TierDomain    Tier = "domain"
	TierShort     Tier = "short"
	TierDefault   Tier = "default"
)

type RequestSettings struct {
	Tier        Tier
	MaxTokens   int
	Timeout     time.Duration
	Temperature float64
	FastMode    bool
}

// ScoredText is a single search hit.
type ScoredText struct {
	Score float32 `json:"score"`
	Text  string  `json:"text"`
}
