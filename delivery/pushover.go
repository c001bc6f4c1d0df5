package delivery

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gregdel/pushover"

	"github.com/itamarsh/listcast/models"
)

// Pushover delivers artifacts as push notifications with the image
// attached. The API client is created once, on first use, and shared.
type Pushover struct {
	Token string

	initOnce sync.Once
	app      *pushover.Pushover
}

func NewPushover(token string) *Pushover {
	return &Pushover{Token: token}
}

func (p *Pushover) ID() string { return models.ChannelPushover }

func (p *Pushover) SendPhoto(ctx context.Context, recipientKey, path, caption string) error {
	p.initOnce.Do(func() {
		p.app = pushover.New(p.Token)
	})

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	message := pushover.NewMessage(caption)
	if err := message.AddAttachment(f); err != nil {
		return fmt.Errorf("attaching artifact: %w", err)
	}

	if _, err := p.app.SendMessage(message, pushover.NewRecipient(recipientKey)); err != nil {
		return fmt.Errorf("sending pushover message: %w", err)
	}
	return nil
}
