package model

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Feedback is a rating plus comment left on a topic for a recipient.
//
// FromUserID is nil when the submitter chose to stay anonymous. Anonymous
// feedback still counts in every aggregate but can no longer be edited.
type Feedback struct {
	ID         string    `json:"id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	TopicID    string    `json:"topicId"`
	FromUserID *string   `json:"fromUserId,omitempty"`
	ToUserID   string    `json:"toUserId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// Populated by list queries only.
	TopicName string `json:"topicName,omitempty"`
	FromName  string `json:"fromName,omitempty"`
	ToName    string `json:"toName,omitempty"`
}

// Anonymous reports whether the submitter's identity was withheld.
func (f *Feedback) Anonymous() bool {
	return f.FromUserID == nil
}

// AuthoredBy reports whether userID wrote this feedback.
func (f *Feedback) AuthoredBy(userID string) bool {
	return f.FromUserID != nil && userID != "" && *f.FromUserID == userID
}
