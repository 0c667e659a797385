package planeserver

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"reelmill/internal/controlplane"
)

var errBadObjectPath = errors.New("object path must be relative and stay inside the bucket")

// objectFile maps an object path onto the object directory.
func (s *Server) objectFile(objectPath string) (string, string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(objectPath))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", "", errBadObjectPath
	}
	if strings.TrimSpace(s.cfg.ObjectDir) == "" {
		return "", "", errors.New("object storage is not configured")
	}
	return cleaned, filepath.Join(s.cfg.ObjectDir, filepath.FromSlash(cleaned)), nil
}

func (s *Server) upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, "missing file part: "+err.Error())
		return
	}
	objectPath, dest, err := s.objectFile(c.PostForm("path"))
	if err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		s.fail(c, err)
		return
	}
	if err := c.SaveUploadedFile(header, dest); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, controlplane.UploadResponse{
		Path: objectPath,
		URL:  s.publicURL(c, objectPath),
	})
}

func (s *Server) serveObject(c *gin.Context) {
	_, file, err := s.objectFile(c.Param("path"))
	if err != nil {
		c.JSON(http.StatusNotFound, controlplane.ErrorResponse{Error: err.Error()})
		return
	}
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, controlplane.ErrorResponse{Error: "object not found"})
		return
	}
	c.File(file)
}

func (s *Server) publicURL(c *gin.Context, objectPath string) string {
	base := s.cfg.PublicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	segments := strings.Split(objectPath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return base + "/storage/objects/" + strings.Join(segments, "/")
}
