package httpdto

import "github.com/google/uuid"

// SendMessageRequest carries at least one of text or image. Image is either
// an http(s) URL or a base64 data URL that gets uploaded first.
type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type MarkSeenRequest struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
}

type MarkSeenResponse struct {
	Updated int64 `json:"updated"`
}
