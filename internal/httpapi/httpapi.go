// Package httpapi exposes the form workflow over HTTP. The acting user is
// taken from the X-User-ID header, set by the authenticating proxy in front
// of the service.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/service"
)

// UserHeader carries the id of the acting user
const UserHeader = "X-User-ID"

const shutdownTimeout = 10 * time.Second

// API routes HTTP requests to the form service
type API struct {
	forms    *service.Service
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// New creates the API. A nil gatherer serves the default registry.
func New(forms *service.Service, gatherer prometheus.Gatherer, logger *zap.Logger) (*API, error) {
	if forms == nil {
		return nil, fmt.Errorf("forms service cannot be nil")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{forms: forms, gatherer: gatherer, logger: logger}, nil
}

// Router builds the gin engine with every route registered
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(a.recovery(), a.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/", a.requireUser())
	api.GET("/templates", a.listTemplates)
	api.GET("/templates/:id/number-preview", a.previewNumber)
	api.GET("/templates/:id/numbers", a.currentNumbers)
	api.POST("/forms", a.createForm)
	api.PUT("/forms/:id", a.updateForm)
	api.GET("/forms/:id", a.formStatus)
	api.POST("/forms/:id/actions", a.takeAction)
	api.POST("/forms/:id/cancel", a.cancelForm)
	api.GET("/forms/:id/pdf", a.renderForm)
	return r
}

// Run serves the API on addr until ctx is done
func (a *API) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (a *API) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		a.logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"})
	})
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (a *API) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserHeader))
		id, err := strconv.ParseUint(raw, 10, 64)
		if raw == "" || err != nil || id == 0 {
			a.fail(c, apperrors.New("missing or invalid "+UserHeader+" header", apperrors.CategoryAuth).
				WithTextCode("UNAUTHENTICATED"))
			c.Abort()
			return
		}
		c.Set("user_id", uint(id))
		c.Next()
	}
}

func userID(c *gin.Context) uint {
	return c.GetUint("user_id")
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.New(fmt.Sprintf("invalid id %q", c.Param("id")), apperrors.CategoryBadInput).
			WithTextCode(service.CodeBadRequest)
	}
	return uint(id), nil
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Errors  []apperrors.FieldError `json:"errors,omitempty"`
}

// statusFor maps an error category to its HTTP status
func statusFor(err error) int {
	switch {
	case apperrors.HasCategory(err, apperrors.CategoryAuthz):
		return http.StatusForbidden
	case apperrors.HasCategory(err, apperrors.CategoryAuth):
		return http.StatusUnauthorized
	case apperrors.HasCategory(err, apperrors.CategoryValidation), apperrors.HasCategory(err, apperrors.CategoryBadInput):
		return http.StatusBadRequest
	case apperrors.HasCategory(err, apperrors.CategoryNotFound):
		return http.StatusNotFound
	case apperrors.HasCategory(err, apperrors.CategoryConflict):
		return http.StatusConflict
	case apperrors.HasCategory(err, apperrors.CategoryExternal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Code: "INTERNAL", Message: "internal server error"}

	var e *apperrors.Error
	if apperrors.As(err, &e) && status != http.StatusInternalServerError {
		body.Code = e.TextCode
		body.Message = e.Message
		body.Errors, _ = apperrors.GetValidationErrors(err)
	} else if status != http.StatusInternalServerError {
		body.Message = err.Error()
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, body)
}

func (a *API) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		a.fail(c, apperrors.New("invalid request body: "+err.Error(), apperrors.CategoryBadInput).
			WithTextCode(service.CodeBadRequest))
		return false
	}
	return true
}
