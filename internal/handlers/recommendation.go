package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/recommender"
	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/pkg/models"
)

// requiredParams are checked in this order; the first missing one is reported.
var requiredParams = []string{"user_id", "category_path", "model"}

type RecommendationHandler struct {
	recommender services.RecommenderInterface
	journal     *logrus.Logger
	logger      *logrus.Logger

	requestsTotal *prometheus.CounterVec
}

// NewRecommendationHandler serves lookups from rec. Every response body is
// also written to journal.
func NewRecommendationHandler(rec services.RecommenderInterface, journal, logger *logrus.Logger) *RecommendationHandler {
	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shoprec_recommendation_requests_total",
		Help: "Recommendation requests by model and outcome",
	}, []string{"model", "outcome"})

	return &RecommendationHandler{
		recommender:   rec,
		journal:       journal,
		logger:        logger,
		requestsTotal: services.RegisterCollector(requestsTotal, "shoprec_recommendation_requests_total", logger),
	}
}

func (h *RecommendationHandler) Get(c *gin.Context) {
	id := uuid.NewString()
	date := time.Now().Format(models.DateLayout)

	reject := func(status int, body models.MessageResponse, outcome string) {
		body.ID = id
		body.Date = date
		h.respond(c, status, body.Model, outcome, body)
	}

	for _, key := range requiredParams {
		if _, ok := c.GetQuery(key); !ok {
			reject(http.StatusBadRequest, models.MessageResponse{
				Message: key + " value is missing!",
				Code:    "MISSING_PARAMETER",
			}, "bad_request")
			return
		}
	}

	var query models.RecommendationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		reject(http.StatusBadRequest, models.MessageResponse{
			Message: err.Error(),
			Code:    "INVALID_QUERY",
		}, "bad_request")
		return
	}

	userID, err := strconv.ParseInt(query.UserID, 10, 64)
	if err != nil {
		reject(http.StatusBadRequest, models.MessageResponse{
			Model:   query.Model,
			Message: "user_id value is not an integer!",
			Code:    "INVALID_USER_ID",
		}, "bad_request")
		return
	}

	if query.Model != services.ModelAdvanced && query.Model != services.ModelBasic {
		reject(http.StatusBadRequest, models.MessageResponse{
			UserID:  &userID,
			Model:   query.Model,
			Message: "unknown model type!",
			Code:    "UNKNOWN_MODEL",
		}, "bad_request")
		return
	}

	category, err := h.recommender.Taxonomy().Parse(query.CategoryPath)
	if err != nil {
		reject(http.StatusBadRequest, models.MessageResponse{
			UserID:  &userID,
			Model:   query.Model,
			Message: err.Error(),
			Code:    "MALFORMED_CATEGORY",
		}, "bad_request")
		return
	}

	recommendations, err := h.recommender.Recommend(query.Model, userID, category)
	if err != nil {
		status, body, outcome := h.lookupFailure(err, category)
		body.UserID = &userID
		body.Model = query.Model
		reject(status, body, outcome)
		return
	}

	h.respond(c, http.StatusOK, query.Model, "success", models.RecommendationResponse{
		ID:              id,
		Date:            date,
		UserID:          userID,
		Model:           query.Model,
		Recommendations: recommendations,
	})
}

func (h *RecommendationHandler) lookupFailure(err error, category catalog.Category) (int, models.MessageResponse, string) {
	switch {
	case errors.Is(err, recommender.ErrUnknownUser):
		return http.StatusNotFound, models.MessageResponse{
			Message: "unknown user!",
			Code:    "UNKNOWN_USER",
		}, "unknown_user"
	case errors.Is(err, services.ErrModelNotLoaded):
		return http.StatusServiceUnavailable, models.MessageResponse{
			Message: "model is not loaded!",
			Code:    "MODEL_NOT_LOADED",
		}, "not_loaded"
	default:
		h.logger.WithError(err).WithField("category", category).Error("Recommendation lookup failed")
		return http.StatusInternalServerError, models.MessageResponse{
			Message: "internal server error",
			Code:    "INTERNAL_ERROR",
		}, "error"
	}
}

func (h *RecommendationHandler) respond(c *gin.Context, status int, model, outcome string, body interface{}) {
	h.requestsTotal.WithLabelValues(metricModel(model), outcome).Inc()
	if h.journal != nil {
		h.journal.WithFields(logrus.Fields{
			"status":   status,
			"response": body,
		}).Info("recommendation response")
	}
	c.JSON(status, body)
}

// metricModel keeps arbitrary model names out of the metric labels.
func metricModel(model string) string {
	switch model {
	case services.ModelAdvanced, services.ModelBasic:
		return model
	default:
		return "unknown"
	}
}
