package outbound

import (
	"context"

	"github.com/mentorclub/auth-service/domain/entity"
)

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)

// Mailer delivers account emails. Delivery failures are reported through the
// status and never abort the calling flow.
type Mailer interface {
	SendConfirmationEmail(ctx context.Context, confirmURL string, user *entity.User) DeliveryStatus
	SendConfirmationSuccessfulEmail(ctx context.Context, user *entity.User) DeliveryStatus
	SendPasswordResetEmail(ctx context.Context, resetURL string, email string) DeliveryStatus
}
