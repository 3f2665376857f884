// Package web serves uploaded images over HTTP: GET for the files the chat
// protocol references by URL path, POST for avatar uploads done outside the
// chat stream.
package web

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"yegnachat/db"
	"yegnachat/images"
)

type ImageServer struct {
	db    *db.DB
	store *images.Store
	log   *zap.Logger
	srv   *http.Server
}

func NewImageServer(database *db.DB, store *images.Store, log *zap.Logger) *ImageServer {
	s := &ImageServer{
		db:    database,
		store: store,
		log:   log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/uploads/*path", s.serveImage)
	router.POST("/uploads", s.uploadImage)

	s.srv = &http.Server{Handler: router}
	return s
}

func (s *ImageServer) Run(addr string) error {
	s.srv.Addr = addr
	s.log.Info("image server listening", zap.String("addr", addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *ImageServer) Shutdown() error {
	return s.srv.Close()
}

func (s *ImageServer) serveImage(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	clean := filepath.Clean(rel)
	if clean == "." || strings.HasPrefix(clean, "..") {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.File(filepath.Join(s.store.Root(), clean))
}

// uploadImage handles out-of-band avatar uploads. The purpose header selects
// which record the resulting URL is written to.
func (s *ImageServer) uploadImage(c *gin.Context) {
	purpose := c.GetHeader("X-Purpose")
	ownerID, err := strconv.ParseInt(c.GetHeader("X-Owner-Id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid owner id"})
		return
	}

	mime := c.GetHeader("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid image type"})
		return
	}

	switch purpose {
	case "avatar", "group_avatar":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Unknown purpose: " + purpose})
		return
	}

	imageURL, err := s.store.SaveFor(purpose, ownerID, c.Request.Body, mime)
	if err != nil {
		s.log.Error("image save failed", zap.String("purpose", purpose), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Upload failed"})
		return
	}

	switch purpose {
	case "avatar":
		err = s.db.UpdateAvatar(ownerID, imageURL)
	case "group_avatar":
		err = s.db.UpdateGroupAvatar(ownerID, imageURL)
	}
	if err != nil {
		s.log.Error("avatar update failed", zap.String("purpose", purpose), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "image_url": imageURL})
}
