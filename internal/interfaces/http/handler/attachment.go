package handler

import (
	attachmentapp "github.com/crewdesk/backend/internal/application/attachment"
	"github.com/gin-gonic/gin"
)

// AttachmentHandler issues presigned URLs; file bytes go straight to object storage
type AttachmentHandler struct {
	BaseHandler
	attachmentService *attachmentapp.Service
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(attachmentService *attachmentapp.Service) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// KeyQuery selects an object by key
type KeyQuery struct {
	Key string `form:"key" binding:"required,max=1024"`
}

// CreateUploadURL godoc
// @ID           createUploadURL
// @Summary      Presign an upload
// @Description  Store the returned key on the record once the PUT succeeds.
// @Tags         attachments
// @Accept       json
// @Produce      json
// @Param        request body attachmentapp.UploadURLRequest true "File"
// @Success      201 {object} APIResponse[attachmentapp.UploadURLResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /attachments/upload-url [post]
func (h *AttachmentHandler) CreateUploadURL(c *gin.Context) {
	var req attachmentapp.UploadURLRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.attachmentService.CreateUploadURL(c.Request.Context(), orgID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// CreateDownloadURL presigns a GET for an attachment key
func (h *AttachmentHandler) CreateDownloadURL(c *gin.Context) {
	var q KeyQuery
	if !h.bindQuery(c, &q) {
		return
	}
	result, err := h.attachmentService.CreateDownloadURL(c.Request.Context(), orgID(c), q.Key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete removes an attachment
func (h *AttachmentHandler) Delete(c *gin.Context) {
	var q KeyQuery
	if !h.bindQuery(c, &q) {
		return
	}
	if err := h.attachmentService.Delete(c.Request.Context(), orgID(c), q.Key); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
