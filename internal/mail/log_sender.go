package mail

import "log/slog"

// LogMailSender writes messages to the log instead of delivering them. It is
// meant for development setups without an SMTP relay.
type LogMailSender struct {
	From string
}

func (s *LogMailSender) Send(message *Message) error {
	slog.Info("Mail not delivered (log backend)",
		"from", s.From,
		"to", message.To,
		"subject", message.Subject,
		"body", message.Body,
	)
	return nil
}

func NewLogMailSender(from string) *LogMailSender {
	return &LogMailSender{From: from}
}
