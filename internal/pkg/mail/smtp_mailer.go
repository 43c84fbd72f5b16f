package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/markverse/replenish/internal/pkg/env"
)

// SendMail sends an email via SMTP. Without SMTP_HOST configured the mail is
// dropped silently so background workers never block on a missing mailer.
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		log.Printf("SMTP_HOST not set, dropping mail to %s (%s)", to, subject)
		return nil
	}

	port := env.GetEnv("SMTP_PORT", "25")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s\r\n", sender, to, subject, body))

	if err := smtp.SendMail(addr, auth, sender, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// SendReplenishmentFailedMail notifies a customer that their recurring order
// was stopped after repeated payment failures.
func SendReplenishmentFailedMail(to string, name string, replenishmentID uint) error {
	subject := "Your recurring order has been paused"
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"we could not process the payment for your recurring order #%d after several attempts. "+
			"The order has been stopped and no further charges will be made.\n\n"+
			"Please check your payment method and set up the recurring order again.\n",
		name, replenishmentID)
	return SendMail(to, subject, body)
}
