package notify

import (
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/jordan-wright/email"

	"go-calc-api/internal/model"
)

// Sender delivers transactional mail over SMTP. The auth service calls it
// from a goroutine, so a slow relay never holds up a request.
type Sender struct {
	host   string
	port   string
	user   string
	pass   string
	sender string
}

func NewSender(host string, port string, user string, pass string, sender string) *Sender {
	return &Sender{host: host, port: port, user: user, pass: pass, sender: sender}
}

func (s *Sender) SendWelcome(user model.User) error {
	e := email.NewEmail()
	e.From = s.sender
	e.To = []string{user.Email}
	e.Subject = "Welcome to the Calculations App"

	name := user.FirstName
	if name == "" {
		name = user.Username
	}

	e.Text = fmt.Appendf(nil,
		"Dear %s,\n\n"+
			"Your account %q has been created.\n"+
			"You can now log in and start keeping track of your calculations.\n\n"+
			"Best regards,\nThe Calculations App",
		name, user.Username)

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}

	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}

	slog.Info("welcome email sent", "user_id", user.ID)
	return nil
}
