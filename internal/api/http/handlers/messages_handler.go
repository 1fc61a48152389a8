package handlers

import (
	"mime"

	"github.com/gofiber/fiber/v2"

	"github.com/pwd-registry/support-desk/internal/service"
)

// MessagesHandler serves message attachments.
type MessagesHandler struct {
	service *service.TicketService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(ticketService *service.TicketService) *MessagesHandler {
	return &MessagesHandler{service: ticketService}
}

// Preview GET /messages/:id/download renders the attachment inline.
func (h *MessagesHandler) Preview(c *fiber.Ctx) error {
	return h.send(c, "inline")
}

// Download GET /messages/:id/force-download sends the attachment as a file download.
func (h *MessagesHandler) Download(c *fiber.Ctx) error {
	return h.send(c, "attachment")
}

func (h *MessagesHandler) send(c *fiber.Ctx, disposition string) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	content, err := h.service.OpenAttachment(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}

	att := content.Attachment
	contentType := att.MimeType
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{"filename": att.OriginalName}))
	c.Set(fiber.HeaderCacheControl, "private, no-store")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	return c.Send(content.Data)
}
