package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is a platform-neutral incoming message. Media is set when the
// message carried a supported attachment.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	Media        *Media
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// MediaKind enumerates the attachment kinds the bot accepts and re-sends.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaGIF       MediaKind = "gif"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaPhoto, MediaGIF, MediaVideo, MediaAnimation:
		return true
	}
	return false
}

// Media is an opaque platform content reference (Telegram: file_id).
type Media struct {
	Kind   MediaKind
	FileID string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyMarkup    any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, m Media, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditReplyMarkup(ctx context.Context, ref MessageRef, markup any) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}
