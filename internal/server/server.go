// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the pipeline over HTTP: job submission and
// lookup, aggregate stats, health probes, and Prometheus metrics.
package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/secure-doc-ai/pipeline/internal/audit"
	"github.com/secure-doc-ai/pipeline/internal/pipeline"
	"github.com/secure-doc-ai/pipeline/internal/storage"
	"github.com/secure-doc-ai/pipeline/internal/worker"
)

// Server exposes the pipeline's job queue and audit store over HTTP.
type Server struct {
	engine *gin.Engine
	layout *storage.Layout
	pool   *worker.Pool
	store  *audit.Store
	addr   string
}

// New builds a Server. pool must already be started; the server only
// submits jobs to it and reads back results via store.
func New(layout *storage.Layout, pool *worker.Pool, store *audit.Store, addr string) *Server {
	s := &Server{
		layout: layout,
		pool:   pool,
		store:  store,
		addr:   addr,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	s.engine = router

	return s
}

// registerRoutes wires the HTTP surface onto router, mirroring the
// route-group-per-concern shape used elsewhere for PDF endpoints.
func (s *Server) registerRoutes(router *gin.Engine) {
	health := router.Group("/health")
	{
		health.GET("/live", s.handleLive)
		health.GET("/ready", s.handleReady)
	}

	router.POST("/jobs", s.handleSubmitJob)
	router.GET("/jobs/:id", s.handleGetJob)
	router.GET("/stats", s.handleStats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run starts the HTTP listener and blocks until it exits.
func (s *Server) Run() error {
	return s.engine.Run(s.addr)
}

// Handler exposes the underlying gin.Engine for tests and for embedding
// behind an external listener (e.g. httptest.Server).
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	if _, err := s.store.GetStats(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleSubmitJob accepts a multipart upload under the "file" field,
// writes it into the processing directory under a collision-free
// UUID-prefixed name, and submits it to the worker pool for
// asynchronous processing.
func (s *Server) handleSubmitJob(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing \"file\" field: " + err.Error()})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	destName := storage.UUIDName(fileHeader.Filename)
	destPath := filepath.Join(s.layout.Processing, destName)

	dest, err := openForWrite(destPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "writing upload: " + err.Error()})
		return
	}

	jobID := pipeline.NewJobID()
	s.pool.Submit(worker.Job{JobID: jobID, FilePath: destPath})

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "filename": fileHeader.Filename})
}

func openForWrite(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
}

func (s *Server) handleGetJob(c *gin.Context) {
	result, err := s.store.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("job %q not found", c.Param("id"))})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
