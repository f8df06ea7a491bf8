package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/meeting-jobs/internal/api/dto"
	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/cuongbtq/meeting-jobs/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateEvent handles POST /api/v1/events
// Validates a trigger event and queues it for the workers
func (h *JobHandler) CreateEvent(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	resolution, err := h.resolver.Resolve(req.EventType, req.Payload)
	if err != nil {
		h.logger.Warn("Rejected event",
			slog.String("event_type", req.EventType),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, domain.ErrUnregisteredEventType):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve event"})
		}
		return
	}

	instance := resolution.Instance
	if !h.enqueue(c, instance.ID, req.EventType, instance.Payload) {
		return
	}

	h.logger.Info("Event accepted",
		slog.String("event_type", req.EventType),
		slog.String("job_type", instance.JobType),
		slog.String("instance_id", instance.ID),
	)

	c.JSON(http.StatusAccepted, dto.CreateEventResponse{
		InstanceID: instance.ID,
		JobType:    instance.JobType,
		EventType:  req.EventType,
		NaturalKey: resolution.NaturalKey,
	})
}

// enqueue publishes the trigger event and writes the error response on failure
func (h *JobHandler) enqueue(c *gin.Context, instanceID, eventType string, payload json.RawMessage) bool {
	body, err := json.Marshal(domain.TriggerEvent{EventType: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("Failed to encode event", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode event"})
		return false
	}

	err = h.publisher.PublishWithRetry(c.Request.Context(), rabbitmq.Message{
		Body:      body,
		MessageID: instanceID,
		Type:      eventType,
	})
	if err != nil {
		h.logger.Error("Failed to publish event",
			slog.String("instance_id", instanceID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue event"})
		return false
	}
	return true
}

// GetJob handles GET /api/v1/jobs/:instance_id
// Returns the instance with its ledger entries and derived status
func (h *JobHandler) GetJob(c *gin.Context) {
	instance, ok := h.loadInstance(c)
	if !ok {
		return
	}

	entries, err := h.ledger.ListEntries(c.Request.Context(), instance.ID)
	if err != nil {
		h.logger.Error("Failed to list ledger entries",
			slog.String("instance_id", instance.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	var steps []string
	if def, ok := h.definitions.ForJobType(instance.JobType); ok {
		steps = def.StepNames()
	}

	c.JSON(http.StatusOK, dto.JobDetailResponse{
		JobDTO: dto.NewJobDTO(instance),
		Status: domain.DeriveInstanceStatus(steps, entries),
		Steps:  dto.NewStepDTOs(steps, entries),
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists instances newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	if h.lister == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Ledger backend cannot list jobs"})
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeInstanceCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	instances, err := h.lister.ListInstances(c.Request.Context(), domain.InstanceFilter{
		JobType:  req.JobType,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(instances) > req.PageSize
	if hasMore {
		instances = instances[:req.PageSize]
	}

	jobs := make([]dto.JobDTO, len(instances))
	for i := range instances {
		jobs[i] = dto.NewJobDTO(&instances[i])
	}

	var nextCursor string
	if hasMore {
		last := instances[len(instances)-1]
		nextCursor = EncodeInstanceCursor(&domain.InstanceCursor{
			CreatedAt:  last.CreatedAt,
			InstanceID: last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: nextCursor,
	})
}

// RedispatchJob handles POST /api/v1/jobs/:instance_id/redispatch
// Queues the stored trigger of an instance again; succeeded steps are not re-run
func (h *JobHandler) RedispatchJob(c *gin.Context) {
	instance, ok := h.loadInstance(c)
	if !ok {
		return
	}

	if !h.enqueue(c, instance.ID, instance.EventType, instance.Payload) {
		return
	}

	h.logger.Info("Job re-dispatched",
		slog.String("instance_id", instance.ID),
		slog.String("job_type", instance.JobType),
	)

	c.JSON(http.StatusAccepted, dto.RedispatchResponse{
		InstanceID: instance.ID,
		JobType:    instance.JobType,
		Status:     "queued",
	})
}

// loadInstance reads the instance named by the path and writes the error
// response when it cannot
func (h *JobHandler) loadInstance(c *gin.Context) (*domain.Instance, bool) {
	instanceID := c.Param("instance_id")

	if _, err := uuid.Parse(instanceID); err != nil {
		h.logger.Warn("Invalid instance_id format",
			slog.String("instance_id", instanceID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "instance_id must be a valid UUID",
		})
		return nil, false
	}

	instance, err := h.ledger.GetInstance(c.Request.Context(), instanceID)
	if err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return nil, false
		}
		h.logger.Error("Failed to get job instance",
			slog.String("instance_id", instanceID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return nil, false
	}

	return instance, true
}
