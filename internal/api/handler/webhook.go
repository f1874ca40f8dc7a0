package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vtanathip/test-case-generator/internal/errs"
	"github.com/vtanathip/test-case-generator/internal/logger"
	"github.com/vtanathip/test-case-generator/internal/service"
)

// WebhookHandler receives GitHub webhook deliveries, validates them, and
// dispatches the generation workflow in the background.
type WebhookHandler struct {
	webhooks *service.WebhookService
	workflow *service.Workflow

	// baseCtx is the lifetime of background jobs, detached from the
	// request so the workflow survives the 202 response.
	baseCtx context.Context
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(baseCtx context.Context, webhooks *service.WebhookService, workflow *service.Workflow) *WebhookHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &WebhookHandler{
		webhooks: webhooks,
		workflow: workflow,
		baseCtx:  baseCtx,
	}
}

// Receive handles POST /webhooks/github.
//
// The delivery is validated synchronously; the workflow itself runs in a
// background goroutine and the handler answers 202 immediately with the
// job and correlation IDs.
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	ctx = logger.SetDeliveryID(ctx, c.GetHeader("X-GitHub-Delivery"))

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": errs.CodeInvalidPayload,
			"message":    "failed to read request body",
		})
		return
	}

	event, err := h.webhooks.ProcessWebhook(ctx, payload,
		c.GetHeader("X-Hub-Signature-256"), c.GetHeader("X-GitHub-Event"))
	if err != nil {
		h.writeWebhookError(c, ctx, err)
		return
	}

	job, err := h.workflow.NewJob(ctx, event)
	if err != nil {
		logger.CtxError(ctx, "failed to register job: %v", err)
		// Free the reservation so the redelivery is not rejected as a
		// duplicate while no job exists
		if rerr := h.webhooks.ReleaseReservation(ctx, event); rerr != nil {
			logger.CtxWarn(ctx, "failed to release idempotency reservation: %v", rerr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": errs.Code(err),
			"message":    "failed to register job",
		})
		return
	}

	// Run the pipeline detached from the request lifetime
	go func() {
		bg := logger.FromContext(ctx).WithContext(h.baseCtx)
		if _, werr := h.workflow.Execute(bg, job, event); werr != nil {
			logger.CtxError(bg, "workflow failed: %v", werr)
		}
	}()

	c.Header("X-Correlation-ID", event.CorrelationID)
	c.Header("X-Job-ID", job.JobID)
	c.JSON(http.StatusAccepted, gin.H{
		"message":        "webhook accepted",
		"job_id":         job.JobID,
		"correlation_id": event.CorrelationID,
	})
}

func (h *WebhookHandler) writeWebhookError(c *gin.Context, ctx context.Context, err error) {
	code := errs.Code(err)

	status := http.StatusBadRequest
	switch code {
	case errs.CodeInvalidSignature:
		status = http.StatusUnauthorized
	case errs.CodeDuplicateWebhook:
		status = http.StatusConflict
	case errs.CodeConnection, errs.CodeInternal:
		status = http.StatusInternalServerError
	}

	logger.CtxWarn(ctx, "webhook rejected: code=%s, %v", code, err)
	c.JSON(status, gin.H{
		"error_code": code,
		"message":    err.Error(),
	})
}
