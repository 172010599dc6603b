package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/progressbus"
)

// RegisterJobRoutes wires the Job Ledger's read surface (spec §4.3/§4.5).
func (h *Handler) RegisterJobRoutes(rg *gin.RouterGroup) {
	rg.GET("/jobs/:id", h.GetJob)
	rg.GET("/jobs/:id/stream", h.StreamJob)
}

func (h *Handler) GetJob(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	job, err := h.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "job not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load job", err)
		return
	}
	if job.TenantID != tenantID {
		writeError(c, http.StatusNotFound, "job not found", nil)
		return
	}
	c.JSON(http.StatusOK, job)
}

// pollInterval/keepAliveInterval/maxStreamDuration mirror spec §4.5's
// "polls the channel every ~1s, emits a keep-alive every ~8s" and caps any
// single connection at ~800s regardless of job state.
const (
	pollInterval      = 1 * time.Second
	keepAliveInterval = 8 * time.Second
	maxStreamDuration = 800 * time.Second
)

// StreamJob serves a job's progress as Server-Sent Events: an immediate
// snapshot of the Job Ledger's current state, then live events off the
// Progress Bus until a complete/error/end event arrives or the client
// disconnects (spec §4.5).
func (h *Handler) StreamJob(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	job, err := h.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "job not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load job", err)
		return
	}
	if job.TenantID != tenantID {
		writeError(c, http.StatusNotFound, "job not found", nil)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	switch job.Status {
	case models.JobStatusCompleted:
		writeSSE(c, "complete", gin.H{"message": job.Message, "document_id": job.DocumentID, "extraction_id": job.ExtractionID, "run_id": job.WorkflowRunID, "fill_run_id": job.TemplateFillRunID})
		c.Writer.Flush()
		writeSSE(c, "end", gin.H{"reason": "completed", "job_id": job.JobID})
		c.Writer.Flush()
		return
	case models.JobStatusFailed:
		writeSSE(c, "error", gin.H{"stage": job.ErrorStage, "message": job.ErrorMessage, "type": job.ErrorType, "retryable": job.ErrorIsRetryable})
		c.Writer.Flush()
		writeSSE(c, "end", gin.H{"reason": "failed", "job_id": job.JobID})
		c.Writer.Flush()
		return
	default:
		writeSSE(c, "progress", gin.H{
			"status": job.Status, "current_stage": job.CurrentStage, "progress_percent": job.ProgressPercent, "message": job.Message, "details": job.Details,
		})
		c.Writer.Flush()
	}

	sub := h.Bus.Subscribe(c.Request.Context(), id.String())
	defer sub.Close()

	deadline := time.Now().Add(maxStreamDuration)
	lastKeepAlive := time.Now()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		default:
		}
		if time.Now().After(deadline) {
			writeSSE(c, "error", gin.H{"stage": job.CurrentStage, "message": "stream exceeded max duration", "type": models.ErrorKindTimeout, "retryable": true})
			c.Writer.Flush()
			writeSSE(c, "end", gin.H{"reason": "timeout", "job_id": job.JobID})
			c.Writer.Flush()
			return
		}

		event, err := sub.Next(c.Request.Context(), pollInterval)
		if err != nil {
			writeSSE(c, "error", gin.H{"stage": job.CurrentStage, "message": err.Error(), "type": models.ErrorKindStream, "retryable": false})
			c.Writer.Flush()
			writeSSE(c, "end", gin.H{"reason": "stream_error", "job_id": job.JobID})
			c.Writer.Flush()
			return
		}

		if event == nil {
			if time.Since(lastKeepAlive) >= keepAliveInterval {
				fmt.Fprint(c.Writer, ": keep-alive\n\n")
				c.Writer.Flush()
				lastKeepAlive = time.Now()
			}
			continue
		}

		writeSSE(c, string(event.Event), event.Payload)
		c.Writer.Flush()
		lastKeepAlive = time.Now()

		if event.Event == progressbus.EventEnd {
			return
		}
	}
}

func writeSSE(c *gin.Context, event string, payload interface{}) {
	c.SSEvent(event, payload)
}
