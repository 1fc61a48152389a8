package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pwd-registry/support-desk/internal/api/dto"
	"github.com/pwd-registry/support-desk/internal/auth"
	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/repository"
	"github.com/pwd-registry/support-desk/internal/service"
	"github.com/pwd-registry/support-desk/internal/storage"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

const attachmentField = "attachment"

// TicketsHandler manages ticket endpoints for admins and PWD members.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var query dto.TicketListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if err := dto.Validate(query); err != nil {
		return err
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = repository.DefaultPageSize
	}

	tickets, err := h.service.ListTickets(c.UserContext(), caller, service.TicketListFilter{
		Statuses:   query.Statuses(),
		Priorities: query.Priorities(),
		Limit:      query.Limit(),
		Offset:     query.Offset(),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Data:     dto.NewTicketResponses(tickets),
		Page:     query.Page,
		PageSize: query.PageSize,
	}})
}

// CreateTicket POST /tickets. Accepts JSON, or multipart form data with an optional attachment.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Priority = normalizePriority(req.Priority)
	if err := dto.Validate(req); err != nil {
		return err
	}
	upload, closeUpload, err := uploadFrom(c)
	if err != nil {
		return err
	}
	defer closeUpload()

	ticket, msg, err := h.service.CreateTicket(c.UserContext(), caller, service.CreateTicketInput{
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    domain.TicketPriority(req.Priority),
		Category:    req.Category,
		Attachment:  upload,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreateTicketResponse{
		Ticket:  dto.NewTicketResponse(*ticket),
		Message: dto.NewMessageResponse(*msg),
	}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetailResponse(detail.Ticket, detail.Messages, detail.History)})
}

// UpdateTicket PUT|PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status != nil {
		status := normalizeStatus(*req.Status)
		req.Status = &status
	}
	if req.Priority != nil {
		priority := normalizePriority(*req.Priority)
		req.Priority = &priority
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	patch := service.TicketPatch{Category: req.Category}
	if req.Status != nil {
		status := domain.TicketStatus(*req.Status)
		patch.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TicketPriority(*req.Priority)
		patch.Priority = &priority
	}

	ticket, err := h.service.UpdateTicket(c.UserContext(), caller, c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(*ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), caller, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Ticket deleted successfully."})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	upload, closeUpload, err := uploadFrom(c)
	if err != nil {
		return err
	}
	defer closeUpload()

	msg, err := h.service.AppendMessage(c.UserContext(), caller, c.Params("id"), req.Message, upload)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(*msg)})
}

// normalizeStatus maps case and whitespace variants of a known status onto its canonical
// value. Unknown input is returned as is for the validator to reject.
func normalizeStatus(raw string) string {
	if status, ok := domain.ParseTicketStatus(raw); ok {
		return string(status)
	}
	return raw
}

func normalizePriority(raw string) string {
	if priority, ok := domain.ParseTicketPriority(raw); ok {
		return string(priority)
	}
	return raw
}

func callerFrom(c *fiber.Ctx) (domain.Caller, error) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return domain.Caller{}, apperrors.NewUnauthorized("authentication required")
	}
	return caller, nil
}

// uploadFrom returns the attachment of a multipart request, or nil when there is none.
// The returned func closes the opened file and is always safe to call.
func uploadFrom(c *fiber.Ctx) (*storage.Upload, func(), error) {
	noop := func() {}
	contentType := strings.ToLower(string(c.Request().Header.ContentType()))
	if !strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
		return nil, noop, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, apperrors.NewFieldValidation(attachmentField, "The attachment failed to upload.")
	}
	files := form.File[attachmentField]
	if len(files) == 0 {
		return nil, noop, nil
	}
	if len(files) > 1 {
		return nil, noop, apperrors.NewFieldValidation(attachmentField, "Only one attachment is allowed per message.")
	}
	return openUpload(files[0])
}

func openUpload(fh *multipart.FileHeader) (*storage.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, apperrors.NewFieldValidation(attachmentField, "The attachment failed to upload.")
	}
	return &storage.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Reader:      f,
	}, func() { _ = f.Close() }, nil
}
