package mail

import "gopkg.in/gomail.v2"

type FailedLeadEmailData struct {
	ID        int64
	RequestID string
	Channel   string
	ErrorType string
	Error     string
	Status    int
	Response  string
	Name      string
	Campaign  string
	Source    string
	When      string
}

// Dialer sends prepared messages; *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	Dialer Dialer
	From   string
	To     []string
}
