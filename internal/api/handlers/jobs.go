package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelspool/internal/db"
)

const dateLayout = "2006-01-02"

type JobResponse struct {
	UUID         string             `json:"uuid"`
	Printer      string             `json:"printer"`
	Labels       int                `json:"labels"`
	Status       string             `json:"status"`
	ErrorMessage string             `json:"error_message,omitempty"`
	SubmittedBy  string             `json:"submitted_by"`
	CreatedAt    time.Time          `json:"created_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Duration     *int64             `json:"duration_ms,omitempty"`
	Items        []*db.PrintJobItem `json:"items,omitempty"`
}

type ListJobsQuery struct {
	Printer  string `form:"printer"`
	Status   string `form:"status"`
	FromDate string `form:"from_date"`
	ToDate   string `form:"to_date"`
	Limit    int    `form:"limit" binding:"max=100"`
	Offset   int    `form:"offset" binding:"min=0"`
}

type PruneJobsQuery struct {
	Before string `form:"before" binding:"required"`
}

type CountersQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

type JobHandler struct{}

func NewJobHandler() *JobHandler {
	return &JobHandler{}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	filter := db.JobFilter{
		Printer: query.Printer,
		Status:  query.Status,
		Limit:   query.Limit,
		Offset:  query.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	if query.FromDate != "" {
		from, err := time.Parse(dateLayout, query.FromDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: "from_date must be YYYY-MM-DD",
			})
			return
		}
		filter.FromDate = &from
	}
	if query.ToDate != "" {
		to, err := time.Parse(dateLayout, query.ToDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: "to_date must be YYYY-MM-DD",
			})
			return
		}
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.ToDate = &end
	}

	jobs, err := db.Jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve jobs",
		})
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		responses = append(responses, jobToResponse(j))
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":   responses,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := db.Jobs.GetJobByUUID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve job",
		})
		return
	}

	items, err := db.Jobs.GetJobItems(ctx, job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve job items",
		})
		return
	}

	resp := jobToResponse(job)
	resp.Items = items
	c.JSON(http.StatusOK, resp)
}

// GetCounters returns labels printed per printer and day; the range defaults
// to the last seven days.
func (h *JobHandler) GetCounters(c *gin.Context) {
	var query CountersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	to := time.Now()
	from := to.AddDate(0, 0, -6)
	var err error
	if query.From != "" {
		if from, err = time.Parse(dateLayout, query.From); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: "from must be YYYY-MM-DD",
			})
			return
		}
	}
	if query.To != "" {
		if to, err = time.Parse(dateLayout, query.To); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: "to must be YYYY-MM-DD",
			})
			return
		}
	}

	counters, err := db.Counters.GetCounters(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve counters",
		})
		return
	}
	if counters == nil {
		counters = []*db.PrintCounter{}
	}

	var total int64
	for _, ctr := range counters {
		total += ctr.Count
	}

	byStatus := make(map[string]int64, 2)
	for _, status := range []string{"completed", "failed"} {
		n, err := db.Jobs.CountJobsByStatus(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "database_error",
				Message: "Failed to count jobs",
			})
			return
		}
		byStatus[status] = n
	}

	c.JSON(http.StatusOK, gin.H{
		"from":     from.Format(dateLayout),
		"to":       to.Format(dateLayout),
		"total":    total,
		"counters": counters,
		"jobs":     byStatus,
	})
}

// PruneJobs deletes job history created before the given day.
func (h *JobHandler) PruneJobs(c *gin.Context) {
	var query PruneJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	before, err := time.Parse(dateLayout, query.Before)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_date",
			Message: "before must be YYYY-MM-DD",
		})
		return
	}

	deleted, err := db.Jobs.DeleteJobsBefore(c.Request.Context(), before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete jobs",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func jobToResponse(job *db.PrintJob) JobResponse {
	resp := JobResponse{
		UUID:         job.UUID,
		Printer:      job.Printer,
		Labels:       job.Labels,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		SubmittedBy:  job.SubmittedBy,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.CompletedAt != nil {
		d := job.CompletedAt.Sub(job.CreatedAt).Milliseconds()
		resp.Duration = &d
	}
	return resp
}

func RegisterJobRoutes(r *gin.RouterGroup, h *JobHandler) {
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/counters", h.GetCounters)
	r.GET("/jobs/:id", h.GetJob)
	r.DELETE("/jobs", h.PruneJobs)
}
