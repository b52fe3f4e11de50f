package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/setup"
	"github.com/roseram/previewd/internal/types"
)

type createPreviewRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Owner     string `json:"owner" binding:"required"`
	Repo      string `json:"repo" binding:"required"`
	Branch    string `json:"branch"`
}

func (s *Server) handleCreatePreview(c *gin.Context) {
	var req createPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body", "details": err.Error()})
		return
	}

	instance, err := s.previews.CreatePreview(c.Request.Context(), req.ProjectID, req.Owner, req.Repo, req.Branch, credential(c), preview.CreateOptions{})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "preview": instance})
}

func (s *Server) handleListPreviews(c *gin.Context) {
	instances, err := s.previews.ListPreviews(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "previews": instances, "count": len(instances)})
}

// handlePreviewStatus reads live status, falling back to the persisted
// row when the in-memory registry has nothing (a restart, or another
// replica created the preview).
func (s *Server) handlePreviewStatus(c *gin.Context) {
	projectID := c.Param("projectID")

	st, err := s.previews.GetPreviewStatus(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if st.Status == types.PreviewStatusNotFound && s.store != nil {
		if row, rowErr := s.store.GetPreview(c.Request.Context(), projectID); rowErr == nil && row != nil {
			st = &preview.Status{
				Status:      row.Status,
				ProjectID:   row.ProjectID,
				PreviewURL:  row.PreviewURL,
				SandboxName: row.SandboxName,
				Port:        row.Port,
			}
		}
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePreviewLogs(c *gin.Context) {
	projectID := c.Param("projectID")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	logs, err := s.previews.FetchLogs(c.Request.Context(), projectID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "project_id": projectID, "logs": logs})
}

func (s *Server) handleDestroyPreview(c *gin.Context) {
	projectID := c.Param("projectID")
	if err := s.previews.DestroyPreview(c.Request.Context(), projectID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "project_id": projectID})
}

type createSessionRequest struct {
	ProjectID    string `json:"project_id" binding:"required"`
	GitHubRepo   string `json:"github_repo" binding:"required"`
	GitHubBranch string `json:"github_branch"`
	UserID       string `json:"user_id"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body", "details": err.Error()})
		return
	}

	session, err := s.setup.InitializeSetupSession(c.Request.Context(), req.ProjectID, req.GitHubRepo, req.GitHubBranch, req.UserID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "session": session})
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, err := s.setup.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"session":  session,
		"progress": progressFor(session),
	})
}

func (s *Server) handleExecuteStep(c *gin.Context) {
	step, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "step must be a number"})
		return
	}

	outcome, err := s.setup.ExecuteSetupStep(c.Request.Context(), c.Param("id"), step, credential(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"session":  outcome.Session,
		"result":   outcome.Result,
		"progress": progressFor(outcome.Session),
	})
}

func (s *Server) handleCancelSession(c *gin.Context) {
	session, err := s.setup.CancelSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": session})
}

func progressFor(session *types.SetupSession) int {
	return setup.CalculateProgress(session.CompletedSteps)
}

type generateRequest struct {
	Brief string `json:"brief" binding:"required"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	if s.generator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "page generation is not configured"})
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body", "details": err.Error()})
		return
	}

	page, err := s.generator.GeneratePage(c.Request.Context(), req.Brief)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "html": page})
}
