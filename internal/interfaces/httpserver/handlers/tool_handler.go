package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/config"
	"toolhub/services/conversion-api/internal/domain/dispatch"
	"toolhub/services/conversion-api/internal/domain/tool"
	"toolhub/services/conversion-api/internal/interfaces/httpserver/responses"
	"toolhub/services/conversion-api/utils/platformerrors"
)

// ToolHandler exposes the tool catalog and the conversion entry points.
type ToolHandler struct {
	cfg        *config.Config
	registry   *tool.Registry
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
}

func NewToolHandler(cfg *config.Config, registry *tool.Registry, dispatcher *dispatch.Dispatcher, log zerolog.Logger) *ToolHandler {
	return &ToolHandler{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "tool-handler").Logger(),
	}
}

// List godoc
// @Summary      List conversion tools
// @Description  Returns every registered tool with its capabilities.
// @Tags         tools
// @Produce      json
// @Success      200  {object}  responses.ToolListResponse
// @Router       /v1/tools [get]
func (h *ToolHandler) List(c *gin.Context) {
	descriptors := h.registry.List()
	tools := make([]responses.ToolPayload, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, responses.NewToolPayload(d))
	}
	c.JSON(http.StatusOK, responses.ToolListResponse{Tools: tools})
}

// Convert godoc
// @Summary      Run a conversion
// @Description  Submits one file to the named tool. In-process tools answer inline; handed-off tools answer 202 with an execution id to poll.
// @Tags         tools
// @Accept       multipart/form-data
// @Produce      json
// @Param        name  path      string  true  "Tool name"
// @Param        file  formData  file    true  "File to convert"
// @Success      200   "inline result or artifact"
// @Success      202   {object}  responses.AsyncAcceptedResponse
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      404   {object}  responses.ErrorResponse
// @Router       /v1/tools/{name}/convert [post]
func (h *ToolHandler) Convert(c *gin.Context) {
	toolName := c.Param("name")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"file is required", "4a6c8e0b-2d1f-4e3a-9b5c-7d9f1b3d5e80")
		return
	}
	defer file.Close()

	input, err := h.readInput(c, file, header)
	if err != nil {
		responses.HandleError(c, err, "failed to read uploaded file")
		return
	}

	outcome, err := h.dispatcher.Dispatch(c.Request.Context(), toolName, *input)
	if err != nil {
		responses.HandleError(c, err, "conversion dispatch failed")
		return
	}

	h.respondOutcome(c, toolName, outcome)
}

// ConvertBulk godoc
// @Summary      Run a bulk conversion
// @Description  Submits several files at once. One invalid file does not reject the rest, except for merge-style tools where the batch is a single execution.
// @Tags         tools
// @Accept       multipart/form-data
// @Produce      json
// @Param        name   path      string  true  "Tool name"
// @Param        files  formData  file    true  "Files to convert"
// @Success      200    {object}  responses.BulkResponse
// @Failure      400    {object}  responses.ErrorResponse
// @Failure      404    {object}  responses.ErrorResponse
// @Router       /v1/tools/{name}/convert-bulk [post]
func (h *ToolHandler) ConvertBulk(c *gin.Context) {
	toolName := c.Param("name")

	form, err := c.MultipartForm()
	if err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"multipart form is required", "6c8e0a2d-4f3b-4a5c-8d7e-9f1b3d5f7a02")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"at least one file is required", "8e0a2c4f-6b5d-4c7e-9f1a-1b3d5f7b9c24")
		return
	}

	params := formParams(c)
	inputs := make([]tool.Input, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
				fmt.Sprintf("failed to open %s", header.Filename), "0a2c4e6f-8d7b-4e9a-1b3c-3d5f7b9d1e46")
			return
		}
		input, err := h.readMultipartFile(c, file, header, params)
		file.Close()
		if err != nil {
			responses.HandleError(c, err, "failed to read uploaded file")
			return
		}
		inputs = append(inputs, *input)
	}

	batchID, results, err := h.dispatcher.DispatchBulk(c.Request.Context(), toolName, inputs)
	if err != nil {
		responses.HandleError(c, err, "bulk conversion dispatch failed")
		return
	}

	resp := responses.BulkResponse{
		BatchID: batchID,
		Tool:    toolName,
		Total:   len(results),
		Items:   make([]responses.BulkItemPayload, 0, len(results)),
	}
	for _, item := range results {
		payload := responses.BulkItemPayload{Filename: item.Filename}
		switch {
		case item.Err != nil:
			payload.Error = errorMessage(item.Err)
			resp.Rejected++
		case item.Outcome != nil && item.Outcome.Async != nil:
			payload.Accepted = true
			payload.ExecutionID = item.Outcome.Async.ExecutionID
			resp.Accepted++
		case item.Outcome != nil && item.Outcome.Output != nil:
			payload.Accepted = true
			payload.Result = inlineResult(item.Outcome.Output)
			resp.Accepted++
		}
		resp.Items = append(resp.Items, payload)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) respondOutcome(c *gin.Context, toolName string, outcome *dispatch.Outcome) {
	if outcome.Async != nil {
		c.JSON(http.StatusAccepted, responses.AsyncAcceptedResponse{
			ExecutionID: outcome.Async.ExecutionID,
			Status:      outcome.Async.Status.String(),
			Message:     "conversion accepted; poll /v1/executions/" + outcome.Async.ExecutionID,
		})
		return
	}

	out := outcome.Output
	if out.IsArtifact() {
		mime := out.MIME
		if mime == "" {
			mime = "application/octet-stream"
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Name))
		c.Data(http.StatusOK, mime, out.Data)
		return
	}

	c.JSON(http.StatusOK, responses.SyncResultResponse{
		Tool:   toolName,
		Result: out.JSON,
	})
}

func (h *ToolHandler) readInput(c *gin.Context, file multipart.File, header *multipart.FileHeader) (*tool.Input, error) {
	return h.readMultipartFile(c, file, header, formParams(c))
}

func (h *ToolHandler) readMultipartFile(c *gin.Context, file multipart.File, header *multipart.FileHeader, params map[string]string) (*tool.Input, error) {
	if header.Size > h.cfg.MaxUploadBytes {
		return nil, platformerrors.NewError(
			c.Request.Context(),
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeValidation,
			fmt.Sprintf("%s exceeds the upload limit of %d bytes", header.Filename, h.cfg.MaxUploadBytes),
			nil,
			"2c4e6a8d-0f1b-4c3d-5e7f-5f7b9d1f3a68",
		)
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, platformerrors.NewError(
			c.Request.Context(),
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeInternal,
			"failed to read uploaded file",
			err,
			"4e6a8c0f-2d3b-4e5f-7a9c-7b9d1f3b5c80",
		)
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		return nil, platformerrors.NewError(
			c.Request.Context(),
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeValidation,
			fmt.Sprintf("%s exceeds the upload limit of %d bytes", header.Filename, h.cfg.MaxUploadBytes),
			nil,
			"6a8c0e2f-4b5d-4f7a-9c1e-9d1f3b5d7e02",
		)
	}

	return &tool.Input{
		Filename: header.Filename,
		Data:     data,
		Params:   params,
	}, nil
}

// formParams collects every non-file form value as a tool parameter. The
// orchestration layer forwards them opaquely.
func formParams(c *gin.Context) map[string]string {
	if c.Request.MultipartForm == nil {
		return nil
	}
	values := c.Request.MultipartForm.Value
	if len(values) == 0 {
		return nil
	}
	params := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}
	return params
}

func errorMessage(err error) string {
	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) && platformErr.Message != "" {
		return platformErr.Message
	}
	return err.Error()
}

func inlineResult(out *tool.Output) any {
	if out.IsArtifact() {
		return map[string]any{
			"name":  out.Name,
			"mime":  out.MIME,
			"bytes": len(out.Data),
		}
	}
	return out.JSON
}
