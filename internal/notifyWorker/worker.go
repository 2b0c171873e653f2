package notifyWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"eventsphere/internal/dto"
	"eventsphere/internal/mailer"
	"eventsphere/internal/rabbit"
)

// Reader drains the notification queue and delivers email. Delivery is
// best-effort: failures are logged, never retried, never surfaced upstream.
type Reader struct {
	RMQ    *rabbit.Client
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, mail *mailer.Mailer) *Reader {
	return &Reader{
		RMQ:  rmq,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("Notification worker started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.NotificationMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal notification: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("kind", msg.Kind).
				Str("email", msg.Email).
				Msg("Received notification message")

			switch msg.Kind {
			case dto.NotifyRegistrationConfirmation:
				if err := r.mail.SendRegistrationConfirmation(msg.Email, msg.EventTitle, msg.EventDate, msg.EventTime); err != nil {
					zlog.Logger.Warn().
						Err(err).
						Str("email", msg.Email).
						Msg("Failed to send registration confirmation")
				}
			case dto.NotifyPasswordReset:
				if err := r.mail.SendPasswordReset(msg.Email, msg.ResetURL); err != nil {
					zlog.Logger.Warn().
						Err(err).
						Str("email", msg.Email).
						Msg("Failed to send password reset email")
				}
			default:
				zlog.Logger.Warn().Msgf("Unknown notification kind: %s", msg.Kind)
			}

			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("Notification worker stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
