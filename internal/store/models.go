package store

import "time"

type Account struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Domain    string    `json:"domain"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID          int               `json:"id"`
	AccountID   int               `json:"accountId"`
	Sender      string            `json:"sender"`
	SenderEmail string            `json:"senderEmail"`
	Recipient   string            `json:"recipient"`
	Subject     string            `json:"subject"`
	Content     string            `json:"content"`
	HTMLContent *string           `json:"htmlContent"`
	ReceivedAt  time.Time         `json:"receivedAt"`
	Read        bool              `json:"read"`
	Headers     map[string]string `json:"headers"`
}
