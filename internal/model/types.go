package model

import (
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultChain is the chain tag applied to wallets registered without one.
const DefaultChain = "solana"

// Identity is an account on the upstream platform. ExternalID is immutable;
// Handle is unique among all identities.
type Identity struct {
	ExternalID       string    `json:"externalId"`
	Handle           string    `json:"handle"`
	RegistrationTime time.Time `json:"registrationTime"`
	FollowerCount    int64     `json:"followerCount"`
	Archived         bool      `json:"archived"`
	Wallets          []Wallet  `json:"wallets,omitempty"`
}

// Wallet binds a blockchain address to exactly one identity.
type Wallet struct {
	ID          string    `json:"id"`
	IdentityRef string    `json:"identityRef"`
	Address     string    `json:"address"`
	Chain       string    `json:"chain"`
	Primary     bool      `json:"primary"`
	Archived    bool      `json:"archived"`
	CreatedTime time.Time `json:"createdTime"`
}

// Post is a single platform post as persisted. CreatedTime never changes after
// the first write.
type Post struct {
	ExternalID  string    `json:"externalId" validate:"required"`
	AuthorRef   string    `json:"authorRef" validate:"required"`
	Content     string    `json:"content"`
	CreatedTime time.Time `json:"createdTime"`
	Relevant    bool      `json:"relevant"`
	Score       float64   `json:"score" validate:"finite,gte=0"`
}

// Metrics are the raw interaction counts reported for a post.
type Metrics struct {
	Reshares int64 `json:"reshares"`
	Likes    int64 `json:"likes"`
	Replies  int64 `json:"replies"`
	Quotes   int64 `json:"quotes"`
}

// Reference kinds.
const (
	RefReshare = "reshare"
	RefQuote   = "quote"
	RefReply   = "reply"
)

// Reference links a post to another post it reshares, quotes or replies to.
type Reference struct {
	Kind         string `json:"kind"`
	PostID       string `json:"postId"`
	AuthorID     string `json:"authorId,omitempty"`
	AuthorHandle string `json:"authorHandle,omitempty"`
}

// EngagementAggregate is the summed engagement score of one identity's posts.
type EngagementAggregate struct {
	IdentityRef string    `json:"identityRef"`
	Score       float64   `json:"score"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Reason classifies the result of an identity operation.
type Reason string

const (
	ReasonRegistered        Reason = "registered"
	ReasonWalletAdded       Reason = "wallet_added"
	ReasonObserved          Reason = "observed"
	ReasonArchived          Reason = "archived"
	ReasonReactivated       Reason = "reactivated"
	ReasonDuplicateIdentity Reason = "duplicate_identity"
	ReasonMissingWallet     Reason = "missing_wallet"
	ReasonDuplicateWallet   Reason = "duplicate_wallet"
	ReasonInvalidWallet     Reason = "invalid_wallet"
	ReasonInvalidIdentity   Reason = "invalid_identity"
	ReasonNotFound          Reason = "not_found"
	ReasonFailed            Reason = "failed"
)

// Outcome is the typed result of an identity operation.
type Outcome struct {
	OK       bool      `json:"ok"`
	Reason   Reason    `json:"reason"`
	Message  string    `json:"message,omitempty"`
	Identity *Identity `json:"identity,omitempty"`
}

// Succeeded builds a successful Outcome.
func Succeeded(reason Reason, id *Identity, msg string) Outcome {
	return Outcome{OK: true, Reason: reason, Message: msg, Identity: id}
}

// Failed builds a failed Outcome.
func Failed(reason Reason, msg string) Outcome {
	return Outcome{OK: false, Reason: reason, Message: msg}
}

// NormalizeHandle trims whitespace and a single leading '@'.
func NormalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32 {
			return false
		}
		v := f.Float()
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	})
}

// Validate checks the post against the store-boundary invariants and returns
// a *ValidationError describing the first violation.
func (p *Post) Validate() error {
	if p == nil {
		return &ValidationError{Field: "post", Reason: "is nil"}
	}
	if err := validate.Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
		}
		return &ValidationError{Field: "post", Reason: err.Error()}
	}
	if p.CreatedTime.IsZero() {
		return &ValidationError{Field: "CreatedTime", Reason: "failed required"}
	}
	return nil
}
