package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"duet-chat/internal/domain/message"
	"duet-chat/internal/domain/user"
	"duet-chat/internal/services"
	"duet-chat/internal/transport/httpdto"
	duet_errors "duet-chat/pkg/errors"
	"duet-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MessageSender interface {
	SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, text, image string) (message.Message, error)
}

type ConversationReader interface {
	ListByConversation(ctx context.Context, a, b uuid.UUID) iter.Seq2[message.Message, error]
	MarkSeen(ctx context.Context, ids []uuid.UUID, viewerID uuid.UUID) (int64, error)
}

type UserLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Partners(ctx context.Context, viewerID uuid.UUID) ([]user.User, error)
}

type ImageResolver interface {
	Resolve(ctx context.Context, ownerID uuid.UUID, image string) (string, error)
}

type MessageHandler struct {
	sender MessageSender
	reader ConversationReader
	users  UserLookup
	images ImageResolver
	log    *logger.Logger
}

func NewMessageHandler(sender MessageSender, reader ConversationReader, users UserLookup, images ImageResolver, log *logger.Logger) *MessageHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &MessageHandler{sender: sender, reader: reader, users: users, images: images, log: log}
}

// Register mounts the conversation routes on an authenticated group.
// sendLimit runs in front of the send route only.
func (h *MessageHandler) Register(group *gin.RouterGroup, sendLimit ...gin.HandlerFunc) {
	group.GET("/users", h.Users)
	group.GET("/:id", h.History)
	group.POST("/send/:id", append(sendLimit, h.Send)...)
	group.PUT("/seen", h.MarkSeen)
}

func (h *MessageHandler) Users(c *gin.Context) {
	viewerID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	users, err := h.users.Partners(c.Request.Context(), viewerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *MessageHandler) History(c *gin.Context) {
	viewerID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	partnerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_REQUEST"))
		return
	}

	h.streamMessages(c, h.reader.ListByConversation(c.Request.Context(), viewerID, partnerID))
}

// streamMessages writes the sequence as a JSON array without holding the
// whole conversation in memory. Once the first element is written a store
// error can only cut the response short.
func (h *MessageHandler) streamMessages(c *gin.Context, msgs iter.Seq2[message.Message, error]) {
	started := false
	begin := func() {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Status(http.StatusOK)
		_, _ = c.Writer.Write([]byte{'['})
		started = true
	}

	n := 0
	for m, err := range msgs {
		var data []byte
		if err == nil {
			data, err = json.Marshal(m)
		}
		if err != nil {
			if !started {
				h.fail(c, err)
				return
			}
			h.log.WithContext(c.Request.Context()).Error("history stream interrupted",
				zap.Int("written", n),
				zap.Error(err),
			)
			c.Abort()
			return
		}

		if !started {
			begin()
		} else {
			_, _ = c.Writer.Write([]byte{','})
		}
		_, _ = c.Writer.Write(data)
		n++
	}

	if !started {
		begin()
	}
	_, _ = c.Writer.Write([]byte{']'})
}

func (h *MessageHandler) Send(c *gin.Context) {
	ctx := c.Request.Context()
	senderID, ok := services.UserIDFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	receiverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_REQUEST"))
		return
	}

	var req httpdto.SendMessageRequest
	if !h.bind(c, &req) {
		return
	}
	if err := services.Validate(senderID, receiverID, req.Text, req.Image); err != nil {
		h.fail(c, err)
		return
	}

	exists, err := h.users.Exists(ctx, receiverID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("user not found", "NOT_FOUND"))
		return
	}

	imageURL, err := h.images.Resolve(ctx, senderID, req.Image)
	if err != nil {
		h.fail(c, err)
		return
	}

	msg, err := h.sender.SendMessage(ctx, senderID, receiverID, req.Text, imageURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) MarkSeen(c *gin.Context) {
	viewerID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.MarkSeenRequest
	if !h.bind(c, &req) {
		return
	}

	updated, err := h.reader.MarkSeen(c.Request.Context(), req.MessageIDs, viewerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.MarkSeenResponse{Updated: updated})
}

// bind decodes the JSON body. A body cut off by the size limit is a 413,
// anything else unreadable a 400.
func (h *MessageHandler) bind(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		h.fail(c, fmt.Errorf("%w: limit is %d bytes", duet_errors.ErrPayloadTooLarge, maxErr.Limit))
		return false
	}
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
	return false
}

func (h *MessageHandler) fail(c *gin.Context, err error) {
	status := duet_errors.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.WithContext(c.Request.Context()).Error("message request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		if !errors.Is(err, duet_errors.ErrUpload) {
			msg = "internal server error"
		}
	}
	c.JSON(status, httpdto.NewErrorResponse(msg, duet_errors.Code(err)))
}
