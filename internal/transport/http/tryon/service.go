package tryon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"tryon-server-go/internal/domain/catalog"
	domaintryon "tryon-server-go/internal/domain/tryon"
	"tryon-server-go/internal/platform/config"
	"tryon-server-go/internal/platform/errors"
	"tryon-server-go/internal/platform/logging"
	"tryon-server-go/internal/platform/storage"
)

// Service is the HTTP transport for the try-on pipeline: catalog listing,
// the streaming try-on endpoint and the feedback sink.
type Service struct {
	logger       *logging.Logger
	config       *config.Config
	catalog      *catalog.Table
	orchestrator *domaintryon.Orchestrator
	uploads      *storage.ResultStore
	feedback     *storage.FeedbackStore
}

func NewService(
	cfg *config.Config,
	logger *logging.Logger,
	table *catalog.Table,
	orchestrator *domaintryon.Orchestrator,
	uploads *storage.ResultStore,
	feedback *storage.FeedbackStore,
) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "tryon.new", "config is required")
	}
	if table == nil {
		return nil, errors.New(errors.KindConfig, "tryon.new", "catalog is required")
	}
	if orchestrator == nil {
		return nil, errors.New(errors.KindConfig, "tryon.new", "orchestrator is required")
	}

	return &Service{
		logger:       logger,
		config:       cfg,
		catalog:      table,
		orchestrator: orchestrator,
		uploads:      uploads,
		feedback:     feedback,
	}, nil
}

// Register attaches the try-on routes to the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/clothing", s.handleClothing)
	router.POST("/tryon", s.handleTryOn)
	router.POST("/feedback", s.handleFeedback)

	s.logger.InfoTag("HTTP", "try-on routes registered")
	return nil
}

func (s *Service) handleClothing(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Items())
}

// tryOnInput is the validated multipart payload. All checks happen before
// the event stream starts so failures can still use a plain 400.
type tryOnInput struct {
	customerImage []byte
	clothingImage []byte
	clothingID    string
	filename      string
}

func (s *Service) handleTryOn(c *gin.Context) {
	input, err := s.parseTryOnRequest(c)
	if err != nil {
		s.logger.WarnTag("TryOn", "request rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.UserMessage(err)})
		return
	}

	if s.uploads != nil {
		if _, err := s.uploads.SaveUpload(input.filename, input.customerImage); err != nil {
			s.logger.WarnTag("Storage", "could not keep upload copy: %v", err)
		}
	}

	s.stream(c, domaintryon.Request{
		CustomerImage: input.customerImage,
		ClothingImage: input.clothingImage,
		ClothingID:    input.clothingID,
	})
}

func (s *Service) parseTryOnRequest(c *gin.Context) (*tryOnInput, error) {
	const op = "tryon.parse_request"

	file, header, err := c.Request.FormFile("customerImage")
	if err != nil {
		return nil, errors.New(errors.KindValidation, op, "No customer image provided")
	}
	defer file.Close()

	clothingID := c.PostForm("clothingId")
	if clothingID == "" {
		return nil, errors.New(errors.KindValidation, op, "No clothing ID provided")
	}

	assetPath, err := s.catalog.ImagePath(clothingID)
	if err != nil {
		return nil, err
	}

	maxSize := s.config.Image.MaxFileSize
	if header.Size > maxSize {
		return nil, errors.New(errors.KindValidation, op,
			fmt.Sprintf("Image too large (max %d MB)", maxSize/(1<<20)))
	}

	customerImage, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, op, "could not read upload", err)
	}
	if int64(len(customerImage)) > maxSize {
		return nil, errors.New(errors.KindValidation, op,
			fmt.Sprintf("Image too large (max %d MB)", maxSize/(1<<20)))
	}

	clothingImage, err := os.ReadFile(assetPath)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "could not read clothing image", err)
	}

	return &tryOnInput{
		customerImage: customerImage,
		clothingImage: clothingImage,
		clothingID:    clothingID,
		filename:      header.Filename,
	}, nil
}

// stream relays orchestrator events to the client as server-sent events.
// Each frame is a single-line JSON payload; the stream ends after the
// terminal event or when the client goes away.
func (s *Service) stream(c *gin.Context, req domaintryon.Request) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	events := s.orchestrator.Run(c.Request.Context(), req)
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.ErrorTag("TryOn", "event encode failed: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			s.logger.DebugTag("TryOn", "client went away: %v", err)
			return
		}
		c.Writer.Flush()
	}
}

type feedbackRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

func (s *Service) handleFeedback(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}

	var req feedbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if s.feedback != nil {
		if err := s.feedback.Save(req.Score, req.Comment, raw); err != nil {
			s.logger.ErrorTag("Feedback", "save failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record feedback"})
			return
		}
	}
	s.logger.InfoTag("Feedback", "received: score=%d", req.Score)

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
