// Package api provides the REST API server for practicetrack
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/james-see/practicetrack/pkg/logger"
	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/james-see/practicetrack/pkg/practice/hosts"
	"github.com/james-see/practicetrack/pkg/timemap"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// maxUpload caps uploaded MIDI files
const maxUpload = 8 << 20

// @title PracticeTrack API
// @version 1.0
// @description API for planning and applying practice track expansions
// @host localhost:8080
// @BasePath /api/v1

// ExpandRequest is a project plus the dialog parameters. Omitted options
// mean the dialog defaults.
type ExpandRequest struct {
	Project hosts.Project     `json:"project"`
	Options *practice.Options `json:"options,omitempty"`
}

func (r ExpandRequest) options() practice.Options {
	if r.Options == nil {
		return practice.DefaultOptions()
	}
	return *r.Options
}

// OpView is one plan operation tagged with its kind
type OpView struct {
	Kind string      `json:"kind"`
	Op   practice.Op `json:"op"`
}

// PlanResponse describes a plan
type PlanResponse struct {
	Plan         *practice.Plan       `json:"plan"`
	Ops          []OpView             `json:"ops"`
	Delta        float64              `json:"delta"`
	NewRegionEnd float64              `json:"new_region_end"`
	TempoPoints  []timemap.TempoPoint `json:"tempo_points"`
}

// ExpandResponse is the edited project and the plan that produced it
type ExpandResponse struct {
	Project *hosts.Project `json:"project"`
	Plan    *PlanResponse  `json:"plan,omitempty"`
	Empty   bool           `json:"empty"`
}

// NewRouter builds the gin engine with every route registered
func NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/policies", listPolicies)
		v1.POST("/plan", handlePlan)
		v1.POST("/expand", handleExpand)
		v1.POST("/tempo/import", handleTempoImport)
		v1.POST("/tempo/export", handleTempoExport)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer starts the API server on the specified port
func StartServer(port int) error {
	return NewRouter().Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		logger.LogAPIRequest(c, time.Since(start), logger.Fields{"request_id": requestID})
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "practicetrack",
	})
}

// listPolicies godoc
// @Summary List gap policies
// @Description Returns the silence placement policies and the dialog defaults
// @Tags info
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/policies [get]
func listPolicies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policies": practice.GapPolicies(),
		"defaults": practice.DefaultOptions(),
	})
}

// handlePlan godoc
// @Summary Plan an expansion
// @Description Computes the copies, gaps and tail shift for the selected items without editing anything
// @Tags practice
// @Accept json
// @Produce json
// @Param request body ExpandRequest true "Project and options"
// @Success 200 {object} PlanResponse
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/plan [post]
func handlePlan(c *gin.Context) {
	var req ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	m := hosts.NewMemory(&req.Project)
	plan, tm, err := practice.Preview(c.Request.Context(), m, req.options())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, describe(plan, tm))
}

// handleExpand godoc
// @Summary Apply an expansion
// @Description Expands the selected items of the posted project and returns the edited project
// @Tags practice
// @Accept json
// @Produce json
// @Param request body ExpandRequest true "Project and options"
// @Success 200 {object} ExpandResponse
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/expand [post]
func handleExpand(c *gin.Context) {
	var req ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	m := hosts.NewMemory(&req.Project)
	points, _ := m.TempoMap(c.Request.Context())
	res, err := practice.NewExpander(m).Run(c.Request.Context(), req.options())
	if err != nil {
		writeError(c, err)
		return
	}

	out := ExpandResponse{Project: m.Project(), Empty: res.Empty}
	if res.Plan != nil {
		tm, err := timemap.New(points)
		if err == nil {
			out.Plan = describe(res.Plan, tm)
		}
	}
	c.JSON(http.StatusOK, out)
}

// handleTempoImport godoc
// @Summary Read a tempo map from MIDI
// @Description Upload a Standard MIDI File and receive its tempo and meter breakpoints
// @Tags tempo
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file"
// @Success 200 {object} map[string][]timemap.TempoPoint
// @Failure 400 {object} map[string]string
// @Router /api/v1/tempo/import [post]
func handleTempoImport(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	tm, err := timemap.FromSMF(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tempo": tm.Points()})
}

// handleTempoExport godoc
// @Summary Write a tempo map as MIDI
// @Description Post tempo breakpoints and receive a single-track Standard MIDI File
// @Tags tempo
// @Accept json
// @Produce audio/midi
// @Param tempo body []timemap.TempoPoint true "Tempo breakpoints"
// @Param resolution query int false "Ticks per quarter note (default: 960)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/tempo/export [post]
func handleTempoExport(c *gin.Context) {
	var points []timemap.TempoPoint
	if err := c.ShouldBindJSON(&points); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	var resolution uint16 = timemap.DefaultResolution
	if v := c.Query("resolution"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil || n == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resolution"})
			return
		}
		resolution = uint16(n)
	}

	tm, err := timemap.New(points)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := tm.ToSMF(resolution)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=tempo.mid")
	c.Data(http.StatusOK, "audio/midi", data)
}

func describe(plan *practice.Plan, tm *timemap.TimeMap) *PlanResponse {
	out := &PlanResponse{
		Plan:         plan,
		Delta:        plan.Delta(),
		NewRegionEnd: plan.NewRegionEnd(),
		TempoPoints:  plan.TempoPoints(tm),
	}
	for _, op := range plan.Ops {
		out.Ops = append(out.Ops, OpView{Kind: op.Kind().String(), Op: op})
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, practice.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, practice.ErrEmptySelection),
		errors.Is(err, practice.ErrNonContiguousSelection),
		errors.Is(err, practice.ErrMultipleTracks),
		errors.Is(err, practice.ErrInvalidItem),
		errors.Is(err, practice.ErrInvalidTimeMap):
		status = http.StatusUnprocessableEntity
	default:
		logger.Error("Request failed", err, logger.Fields{"path": c.Request.URL.Path})
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
