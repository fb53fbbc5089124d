package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
)

// RetryMessage is shown for every gateway failure.
const RetryMessage = "We couldn't start the payment. Please try again."

var (
	// ErrOfferNotAccepted is returned before any network call when the
	// buyer did not accept the public offer.
	ErrOfferNotAccepted = errors.New("payments: offer not accepted")
	// ErrCourseRequired is returned for a blank course id.
	ErrCourseRequired = errors.New("payments: course id is required")
	// ErrOrderRequired is returned by Sync for a blank order id.
	ErrOrderRequired = errors.New("payments: order id is required")
)

// GatewayError wraps any failure of the payment gateway.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string { return RetryMessage }
func (e *GatewayError) Unwrap() error { return e.Err }

// Backend is the payment side of the learning backend.
type Backend interface {
	InitPayment(ctx context.Context, courseID string) (models.PaymentInit, error)
	SyncPayment(ctx context.Context, orderID string) (models.PaymentStatus, error)
	Feedback(ctx context.Context, courseID string) ([]models.Feedback, error)
	PostFeedback(ctx context.Context, fb models.Feedback) (models.Feedback, error)
	PurchasedCourses(ctx context.Context) ([]models.PurchasedCourse, error)
}

// PurchaseForm is what the checkout screen submits.
type PurchaseForm struct {
	CourseID      string `json:"courseId"`
	OfferAccepted bool   `json:"offerAccepted"`
}

// Service drives checkout, feedback and purchase listing.
type Service struct {
	backend Backend
	log     *logger.Logger
}

func NewService(backend Backend, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{backend: backend, log: log.With("component", "payments")}
}

// Submit starts a payment and returns where to send the buyer.
func (s *Service) Submit(ctx context.Context, form PurchaseForm) (models.PaymentInit, error) {
	if !form.OfferAccepted {
		return models.PaymentInit{}, ErrOfferNotAccepted
	}
	courseID := strings.TrimSpace(form.CourseID)
	if courseID == "" {
		return models.PaymentInit{}, ErrCourseRequired
	}
	out, err := s.backend.InitPayment(ctx, courseID)
	if err != nil {
		s.log.Warn("payment init failed", "course_id", courseID, "error", err)
		return models.PaymentInit{}, &GatewayError{Err: err}
	}
	s.log.Info("payment initialized", "course_id", courseID, "order_id", out.OrderID)
	return out, nil
}

// Sync reconciles an order after the buyer returns from the gateway.
func (s *Service) Sync(ctx context.Context, orderID string) (models.PaymentStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return models.PaymentStatus{}, ErrOrderRequired
	}
	out, err := s.backend.SyncPayment(ctx, orderID)
	if err != nil {
		s.log.Warn("payment sync failed", "order_id", orderID, "error", err)
		return models.PaymentStatus{}, &GatewayError{Err: err}
	}
	return out, nil
}

// Feedback lists reviews for a course.
func (s *Service) Feedback(ctx context.Context, courseID string) ([]models.Feedback, error) {
	list, err := s.backend.Feedback(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	if list == nil {
		list = []models.Feedback{}
	}
	return list, nil
}

// PostFeedback submits a review for a course.
func (s *Service) PostFeedback(ctx context.Context, fb models.Feedback) (models.Feedback, error) {
	if strings.TrimSpace(fb.CourseID) == "" {
		return models.Feedback{}, ErrCourseRequired
	}
	out, err := s.backend.PostFeedback(ctx, fb)
	if err != nil {
		return models.Feedback{}, fmt.Errorf("post feedback: %w", err)
	}
	return out, nil
}

// Purchases lists the visitor's purchased courses.
func (s *Service) Purchases(ctx context.Context) ([]models.PurchasedCourse, error) {
	list, err := s.backend.PurchasedCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	if list == nil {
		list = []models.PurchasedCourse{}
	}
	return list, nil
}
