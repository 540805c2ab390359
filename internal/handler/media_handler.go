package handler

import (
	"io"
	"strconv"

	"github.com/y-cruce/postflow/internal/pkg/response"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes 单个素材文件的大小上限（Graph API 图片/视频约束之内）
const maxUploadBytes = 300 << 20

// MediaHandler 素材上传、列表与删除接口
type MediaHandler struct {
	mediaService *service.MediaService
}

func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// Upload stores one multipart file, deduplicated by content hash.
// POST /api/media/upload  (form fields: account_id, caption?, file)
func (h *MediaHandler) Upload(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.PostForm("account_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "account_id is required")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.BadRequest(c, "file exceeds the upload size limit")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "could not read uploaded file")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		response.InternalError(c, "Failed to read upload: "+err.Error())
		return
	}
	if len(data) > maxUploadBytes {
		response.BadRequest(c, "file exceeds the upload size limit")
		return
	}

	result, err := h.mediaService.Upload(c.Request.Context(), service.UploadInput{
		AccountID:   accountID,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Caption:     c.PostForm("caption"),
		Data:        data,
	})
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{
		"asset":            result.Asset,
		"caption_inferred": result.CaptionInferred,
		"deduplicated":     result.Deduplicated,
	})
}

// List returns the account's assets with fetchable URLs.
// GET /api/media?account_id=
func (h *MediaHandler) List(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Query("account_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "account_id is required")
		return
	}

	assets, err := h.mediaService.List(c.Request.Context(), accountID)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"items": assets})
}

// Delete removes the asset row and its stored object.
// DELETE /api/media/:id
func (h *MediaHandler) Delete(c *gin.Context) {
	if err := h.mediaService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
