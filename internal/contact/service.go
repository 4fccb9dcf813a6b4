package contact

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/notify"
	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"go.uber.org/zap"
)

const maxMessageLen = 5000

type Service interface {
	Submit(ctx context.Context, in Inquiry) (*Inquiry, error)
}

type service struct {
	repo       Repository
	notifier   notify.Sender
	adminEmail string
}

func NewService(repo Repository, notifier notify.Sender, adminEmail string) Service {
	return &service{repo: repo, notifier: notifier, adminEmail: adminEmail}
}

func validate(in Inquiry) error {
	var errs []wizard.FieldError
	if in.Name == "" {
		errs = append(errs, wizard.FieldError{Field: "name", Message: "Name is required"})
	}
	if in.Email == "" {
		errs = append(errs, wizard.FieldError{Field: "email", Message: "Email is required"})
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		errs = append(errs, wizard.FieldError{Field: "email", Message: "Please enter a valid email address"})
	}
	if in.Message == "" {
		errs = append(errs, wizard.FieldError{Field: "message", Message: "Message is required"})
	} else if len(in.Message) > maxMessageLen {
		errs = append(errs, wizard.FieldError{Field: "message", Message: "Message is too long"})
	}
	if in.ServiceInterest != "" && !slices.Contains(ServiceInterests, in.ServiceInterest) {
		errs = append(errs, wizard.FieldError{Field: "service_interest", Message: "Please choose one of the listed services"})
	}
	if len(errs) > 0 {
		return &wizard.ValidationError{Step: "contact", Fields: errs}
	}
	return nil
}

// Submit stores the inquiry and then tells the front desk. The notification
// is best-effort.
func (s *service) Submit(ctx context.Context, in Inquiry) (*Inquiry, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Contact"),
		zap.String("method", "Submit"),
	)

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.ServiceInterest = strings.ToLower(strings.TrimSpace(in.ServiceInterest))
	in.Message = strings.TrimSpace(in.Message)

	if err := validate(in); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &in); err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, notify.Message{
		To:      s.adminEmail,
		Subject: "New Contact Inquiry from " + in.Name,
		Body: fmt.Sprintf(
			"New contact form submission:\n\nName: %s\nEmail: %s\nPhone: %s\nService Interest: %s\n\nMessage:\n%s\n",
			in.Name, in.Email, utils.FirstNonEmpty(in.Phone, "N/A"),
			utils.FirstNonEmpty(in.ServiceInterest, "N/A"), in.Message,
		),
	})

	log.Info("inquiry received", zap.String("inquiry_id", in.ID.String()))
	return &in, nil
}
