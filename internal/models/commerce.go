package models

import "time"

// PaymentInit is the gateway's answer to a purchase request.
type PaymentInit struct {
	PaymentURL string `json:"paymentUrl" validate:"required,url"`
	OrderID    string `json:"orderId" validate:"required"`
}

// PaymentStatus is returned by the sync call.
type PaymentStatus struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Paid    bool   `json:"paid"`
}

// Feedback is one learner review for a course.
type Feedback struct {
	ID        string    `json:"id,omitempty"`
	CourseID  string    `json:"course_id"`
	Rating    int       `json:"rating" validate:"min=1,max=5"`
	Text      string    `json:"text" validate:"max=4000"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// PurchasedCourse is an entry of /api/purchases/courses.
type PurchasedCourse struct {
	CourseID    string    `json:"course_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// ChatRole is the author of a sandbox chat message.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage is one transient sandbox chat entry.
type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}
