package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprint-academy/internal/models"
)

type fakeBackend struct {
	initCalls int
	initErr   error
	syncErr   error
	feedback  []models.Feedback
	posted    []models.Feedback
}

func (f *fakeBackend) InitPayment(ctx context.Context, courseID string) (models.PaymentInit, error) {
	f.initCalls++
	if f.initErr != nil {
		return models.PaymentInit{}, f.initErr
	}
	return models.PaymentInit{PaymentURL: "https://pay.example/" + courseID, OrderID: "ord-1"}, nil
}

func (f *fakeBackend) SyncPayment(ctx context.Context, orderID string) (models.PaymentStatus, error) {
	if f.syncErr != nil {
		return models.PaymentStatus{}, f.syncErr
	}
	return models.PaymentStatus{OrderID: orderID, Status: "CONFIRMED", Paid: true}, nil
}

func (f *fakeBackend) Feedback(ctx context.Context, courseID string) ([]models.Feedback, error) {
	return f.feedback, nil
}

func (f *fakeBackend) PostFeedback(ctx context.Context, fb models.Feedback) (models.Feedback, error) {
	f.posted = append(f.posted, fb)
	fb.ID = "fb-1"
	return fb, nil
}

func (f *fakeBackend) PurchasedCourses(ctx context.Context) ([]models.PurchasedCourse, error) {
	return nil, nil
}

func TestSubmit_OfferNotAcceptedNeverCallsGateway(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, nil)

	_, err := svc.Submit(context.Background(), PurchaseForm{CourseID: "html", OfferAccepted: false})
	assert.ErrorIs(t, err, ErrOfferNotAccepted)
	assert.Zero(t, backend.initCalls)
}

func TestSubmit_BlankCourse(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, nil)

	_, err := svc.Submit(context.Background(), PurchaseForm{CourseID: "  ", OfferAccepted: true})
	assert.ErrorIs(t, err, ErrCourseRequired)
	assert.Zero(t, backend.initCalls)
}

func TestSubmit_Success(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, nil)

	out, err := svc.Submit(context.Background(), PurchaseForm{CourseID: "html", OfferAccepted: true})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/html", out.PaymentURL)
	assert.Equal(t, "ord-1", out.OrderID)
	assert.Equal(t, 1, backend.initCalls)
}

func TestSubmit_GatewayFailureUsesGenericMessage(t *testing.T) {
	cause := errors.New("upstream said: card network unavailable")
	svc := NewService(&fakeBackend{initErr: cause}, nil)

	_, err := svc.Submit(context.Background(), PurchaseForm{CourseID: "html", OfferAccepted: true})
	require.Error(t, err)
	assert.Equal(t, RetryMessage, err.Error())
	assert.ErrorIs(t, err, cause)

	var gw *GatewayError
	assert.True(t, errors.As(err, &gw))
}

func TestSync(t *testing.T) {
	svc := NewService(&fakeBackend{}, nil)
	st, err := svc.Sync(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.True(t, st.Paid)

	_, err = svc.Sync(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrOrderRequired)

	svc = NewService(&fakeBackend{syncErr: errors.New("down")}, nil)
	_, err = svc.Sync(context.Background(), "ord-1")
	assert.EqualError(t, err, RetryMessage)
}

func TestFeedbackAndPurchases(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, nil)
	ctx := context.Background()

	list, err := svc.Feedback(ctx, "html")
	require.NoError(t, err)
	assert.NotNil(t, list)

	out, err := svc.PostFeedback(ctx, models.Feedback{CourseID: "html", Rating: 5, Text: "great"})
	require.NoError(t, err)
	assert.Equal(t, "fb-1", out.ID)

	_, err = svc.PostFeedback(ctx, models.Feedback{Rating: 5})
	assert.ErrorIs(t, err, ErrCourseRequired)
	assert.Len(t, backend.posted, 1)

	purchases, err := svc.Purchases(ctx)
	require.NoError(t, err)
	assert.NotNil(t, purchases)
}
