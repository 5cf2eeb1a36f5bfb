package email

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/shinedetail/booking-api/internal/config"
	"github.com/shinedetail/booking-api/internal/model"
)

type Service interface {
	SendBookingConfirmation(ctx context.Context, payload *model.BookingEventPayload) error
	SendBookingCancellation(ctx context.Context, payload *model.BookingEventPayload) error
}

type smtpService struct {
	dialer    *gomail.Dialer
	from      string
	cancelURL string
}

// NewSMTPService builds a sender over plain SMTP. cancelURL is the public
// endpoint the cancellation link points at; the token is appended as a query
// parameter.
func NewSMTPService(cfg *config.EmailConfig, password string) Service {
	return &smtpService{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, password),
		from:      cfg.From,
		cancelURL: strings.TrimRight(cfg.CancelURL, "/"),
	}
}

func (s *smtpService) SendBookingConfirmation(ctx context.Context, payload *model.BookingEventPayload) error {
	subject := fmt.Sprintf("Booking confirmed: %s", payload.Reference)
	return s.send(ctx, payload.CustomerEmail, subject, confirmationBody(payload, s.cancelURL))
}

func (s *smtpService) SendBookingCancellation(ctx context.Context, payload *model.BookingEventPayload) error {
	subject := fmt.Sprintf("Booking cancelled: %s", payload.Reference)
	return s.send(ctx, payload.CustomerEmail, subject, cancellationBody(payload))
}

func confirmationBody(payload *model.BookingEventPayload, cancelURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", payload.CustomerName)
	fmt.Fprintf(&b, "Your detailing appointment is confirmed.\n\n")
	fmt.Fprintf(&b, "Reference: %s\n", payload.Reference)
	fmt.Fprintf(&b, "Date:      %s at %s\n", payload.SlotDate, payload.SlotStartTime)
	fmt.Fprintf(&b, "Address:   %s\n\n", payload.Address)
	for _, line := range payload.Services {
		fmt.Fprintf(&b, "  - %s  $%s\n", line.ServiceName, line.PriceAtBooking.StringFixed(2))
	}
	if payload.TravelCost != "" && payload.TravelCost != "0.00" {
		fmt.Fprintf(&b, "  - Travel surcharge  $%s\n", payload.TravelCost)
	}
	fmt.Fprintf(&b, "\nTotal: $%s\n", payload.TotalPrice)
	if payload.CancelToken != "" {
		fmt.Fprintf(&b, "\nNeed to cancel? Use the link below:\n%s/%s/cancel?token=%s\n",
			cancelURL, payload.BookingID, payload.CancelToken)
	}
	b.WriteString("\nSee you then!\n")
	return b.String()
}

func cancellationBody(payload *model.BookingEventPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", payload.CustomerName)
	fmt.Fprintf(&b, "Your appointment on %s at %s has been cancelled.\n", payload.SlotDate, payload.SlotStartTime)
	if payload.CancelReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", payload.CancelReason)
	}
	b.WriteString("\nThe slot has been released. You are welcome to book again any time.\n")
	return b.String()
}

func (s *smtpService) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
