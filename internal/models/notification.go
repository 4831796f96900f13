package models

import "time"

type Feedback string

const (
	FeedbackUseful    Feedback = "useful"
	FeedbackNotUseful Feedback = "not_useful"
)

func (f Feedback) Valid() bool {
	return f == FeedbackUseful || f == FeedbackNotUseful
}

// NotificationRecord is a notification accepted by the gate. Older records
// may lack an id or feedback fields; both decode to zero values.
type NotificationRecord struct {
	ID              string     `json:"id,omitempty"`
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	SentAt          time.Time  `json:"sentAt"`
	Feedback        *Feedback  `json:"feedback,omitempty"`
	FeedbackGivenAt *time.Time `json:"feedbackGivenAt,omitempty"`
}

// Notification is the content handed to delivery transports.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`

	// Set for gated notifications so clients can link back to feedback.
	ID string `json:"id,omitempty"`
}
