package handler

import (
	"net/http"

	"commune-chat/internal/storage"
	"commune-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 25 << 20

type UploadHandler struct {
	storage *storage.Client
}

func NewUploadHandler(client *storage.Client) *UploadHandler {
	return &UploadHandler{storage: client}
}

// Upload accepts one multipart file and stores it as a message attachment.
// The returned URL goes into a follow-up kind=file message send.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("file storage not configured", "BACKEND_UNAVAILABLE"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("file is required", "INVALID_REQUEST"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("file too large", "INVALID_REQUEST"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file", "INVALID_REQUEST"))
		return
	}
	defer file.Close()

	url, key, err := h.storage.Upload(c.Request.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("upload failed", "BACKEND_UNAVAILABLE"))
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadResponse{
		URL:      url,
		Key:      key,
		FileName: fileHeader.Filename,
	}))
}
