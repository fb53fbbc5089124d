package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"sprint-academy/internal/models"
)

// InitPayment starts a gateway payment for a course.
func (c *Client) InitPayment(ctx context.Context, courseID string) (models.PaymentInit, error) {
	var out models.PaymentInit
	body := map[string]string{"courseId": courseID}
	if err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/payments/tbank/init", Body: body}, &out); err != nil {
		return models.PaymentInit{}, err
	}
	if err := c.validate.Struct(out); err != nil {
		return models.PaymentInit{}, fmt.Errorf("invalid payment payload: %w", err)
	}
	return out, nil
}

// SyncPayment asks the backend to reconcile an order with the gateway.
func (c *Client) SyncPayment(ctx context.Context, orderID string) (models.PaymentStatus, error) {
	var out models.PaymentStatus
	body := map[string]string{"orderId": orderID}
	err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/payments/tbank/sync", Body: body}, &out)
	if out.OrderID == "" {
		out.OrderID = orderID
	}
	return out, err
}

func feedbackPath(courseID string) string {
	return "/api/feedback/" + url.PathEscape(courseID)
}

// Feedback lists reviews for a course.
func (c *Client) Feedback(ctx context.Context, courseID string) ([]models.Feedback, error) {
	var out []models.Feedback
	err := c.Call(ctx, Request{Method: http.MethodGet, Path: feedbackPath(courseID)}, &out)
	return out, err
}

// PostFeedback submits a review.
func (c *Client) PostFeedback(ctx context.Context, fb models.Feedback) (models.Feedback, error) {
	if err := c.validate.Struct(fb); err != nil {
		return models.Feedback{}, fmt.Errorf("invalid feedback: %w", err)
	}
	var out models.Feedback
	err := c.Call(ctx, Request{Method: http.MethodPost, Path: feedbackPath(fb.CourseID), Body: fb}, &out)
	return out, err
}

// PurchasedCourses lists courses the visitor bought.
func (c *Client) PurchasedCourses(ctx context.Context) ([]models.PurchasedCourse, error) {
	var out []models.PurchasedCourse
	err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/purchases/courses"}, &out)
	return out, err
}
