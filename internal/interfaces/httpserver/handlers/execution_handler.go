package handlers

import (
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/config"
	"toolhub/services/conversion-api/internal/domain/dispatch"
	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/infrastructure/metrics"
	"toolhub/services/conversion-api/internal/interfaces/httpserver/responses"
	"toolhub/services/conversion-api/utils/execid"
	"toolhub/services/conversion-api/utils/platformerrors"
)

// ExecutionHandler exposes the polling, callback and download endpoints.
type ExecutionHandler struct {
	cfg        *config.Config
	executions *execution.Service
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
}

func NewExecutionHandler(cfg *config.Config, executions *execution.Service, dispatcher *dispatch.Dispatcher, log zerolog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		cfg:        cfg,
		executions: executions,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "execution-handler").Logger(),
	}
}

// callbackRequest is the compute tier's wire contract: the blob path and
// size use their storage-facing names, the failure reason travels as "error".
type callbackRequest struct {
	Status       string `json:"status" binding:"required"`
	OutputRef    string `json:"output_blob_path"`
	OutputBytes  int64  `json:"output_size_bytes"`
	ErrorMessage string `json:"error"`
	ErrorDetail  string `json:"error_detail"`
}

// Get godoc
// @Summary      Poll an execution
// @Description  Returns the current state of one execution.
// @Tags         executions
// @Produce      json
// @Param        id   path      string  true  "Execution ID"
// @Success      200  {object}  responses.ExecutionPayload
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/executions/{id} [get]
func (h *ExecutionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !execid.IsValid(id) {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"malformed execution id", "1b3d5f7a-9c2e-4b4d-6e8f-0a2c4e6a8c15")
		return
	}

	exec, err := h.executions.Get(c.Request.Context(), id)
	if err != nil {
		responses.HandleError(c, err, "failed to load execution")
		return
	}
	c.JSON(http.StatusOK, responses.NewExecutionPayload(exec))
}

// Callback godoc
// @Summary      Report a terminal result
// @Description  Receives the compute tier's terminal status for an execution. Duplicate or late callbacks against a terminal record are acknowledged and ignored.
// @Tags         executions
// @Accept       json
// @Produce      json
// @Param        id       path      string           true  "Execution ID"
// @Param        request  body      callbackRequest  true  "Terminal status"
// @Success      200      {object}  responses.ExecutionPayload
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      401      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Router       /v1/executions/{id}/callback [post]
func (h *ExecutionHandler) Callback(c *gin.Context) {
	if h.cfg.CallbackToken != "" && c.GetHeader("X-Callback-Token") != h.cfg.CallbackToken {
		metrics.RecordCallback("unknown", "unauthorized")
		responses.HandleNewError(c, platformerrors.ErrorTypeUnauthorized,
			"invalid callback token", "3d5f7b9c-1e2a-4d6f-8a0b-2c4e6a8e0d37")
		return
	}

	id := c.Param("id")
	if !execid.IsValid(id) {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"malformed execution id", "5f7b9d1e-3a2c-4f8a-0b1c-4e6a8c0f2e59")
		return
	}

	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RecordCallback("unknown", "malformed")
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"malformed callback payload", "7b9d1f3a-5c2e-4a0b-2c3d-6a8c0e2a4f71")
		return
	}

	status, ok := execution.ParseStatus(req.Status)
	if !ok {
		metrics.RecordCallback(req.Status, "malformed")
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"unknown status: "+req.Status, "9d1f3b5c-7e2a-4c1d-4e5f-8c0e2a4c6a93")
		return
	}

	exec, err := h.executions.ApplyCallback(c.Request.Context(), id, execution.CallbackUpdate{
		Status:       status,
		OutputRef:    req.OutputRef,
		OutputBytes:  req.OutputBytes,
		ErrorMessage: req.ErrorMessage,
		ErrorDetail:  req.ErrorDetail,
	})
	if err != nil {
		metrics.RecordCallback(req.Status, "rejected")
		responses.HandleError(c, err, "failed to apply callback")
		return
	}

	metrics.RecordCallback(req.Status, "applied")
	c.JSON(http.StatusOK, responses.NewExecutionPayload(exec))
}

// Download godoc
// @Summary      Download a completed artifact
// @Description  Streams the output of a completed execution through the API.
// @Tags         executions
// @Produce      octet-stream
// @Param        id   path  string  true  "Execution ID"
// @Success      200  "binary data"
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/executions/{id}/download [get]
func (h *ExecutionHandler) Download(c *gin.Context) {
	id := c.Param("id")
	if !execid.IsValid(id) {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"malformed execution id", "1f3b5d7e-9a2c-4e3f-6a7b-0e2a4c6c8e15")
		return
	}

	reader, mime, err := h.dispatcher.DownloadOutput(c.Request.Context(), id)
	if err != nil {
		responses.HandleError(c, err, "failed to download output")
		return
	}
	defer reader.Close()

	if mime == "" {
		mime = "application/octet-stream"
	}

	exec, err := h.executions.Get(c.Request.Context(), id)
	if err == nil && exec.OutputRef != "" {
		c.Header("Content-Disposition", "attachment; filename=\""+path.Base(exec.OutputRef)+"\"")
	}

	c.Header("Content-Type", mime)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.log.Error().Err(err).Str("execution_id", id).Msg("stream error")
	}
}
