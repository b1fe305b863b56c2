package models

import "time"

type AccountState string

const (
	StatePending AccountState = "pending"
	StateActive  AccountState = "active"
	StateDeleted AccountState = "deleted"
)

type Account struct {
	ID          string
	Name        string
	DisplayName string
	Email       string
	About       string
	ImageURL    string
	PassHash    []byte
	State       AccountState
	Sysadmin    bool
	CreatedAt   time.Time
}

// Actor is the authenticated caller of an operation. The zero value is
// anonymous. It is passed explicitly into every service call instead of
// living in request-scoped globals.
type Actor struct {
	ID       string
	Name     string
	Sysadmin bool
}

func (a Actor) Anonymous() bool {
	return a.ID == ""
}

// Owns reports whether the actor is the account itself or a sysadmin.
func (a Actor) Owns(accountID string) bool {
	return a.Sysadmin || (a.ID != "" && a.ID == accountID)
}

type RefreshToken struct {
	TokenHash []byte
	AccountID string
	ExpiresAt time.Time
}

// FollowEdge is a directed subscription: the follower sees the target's
// activity. (A,B) and (B,A) are distinct edges.
type FollowEdge struct {
	FollowerID string
	TargetID   string
	CreatedAt  time.Time
}

// Message is the payload published to the mail queue. Delivery itself is the
// mail sender service's job.
type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}

// Event is an opaque lifecycle notification consumed by the activity stream.
type Event struct {
	Kind       string    `json:"kind"`
	AccountID  string    `json:"account_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventAccountCreated  = "account.created"
	EventAccountUpdated  = "account.updated"
	EventAccountDeleted  = "account.deleted"
	EventAccountPromoted = "account.promoted"
	EventAccountDemoted  = "account.demoted"
)
