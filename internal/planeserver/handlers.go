package planeserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reelmill/internal/controlplane"
	"reelmill/internal/logging"
	"reelmill/internal/project"
)

func (s *Server) queuedJobs(c *gin.Context) {
	jobs, err := s.store.QueuedJobs(c.Request.Context(), c.GetString(ctxDaemonID), queryLimit(c, 10))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(jobs))
}

func (s *Server) jobExists(c *gin.Context) {
	projectID := strings.TrimSpace(c.Query("projectId"))
	stage, err := project.ParseStage(c.Query("type"))
	if projectID == "" || err != nil {
		s.badRequest(c, "projectId and a valid type are required")
		return
	}
	exists, err := s.store.JobExists(c.Request.Context(), projectID, stage)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, controlplane.ExistsResponse{Exists: exists})
}

func (s *Server) createJob(c *gin.Context) {
	var req controlplane.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid job request: "+err.Error())
		return
	}
	job, err := s.store.CreateJob(c.Request.Context(), c.GetString(ctxDaemonID), req.ProjectID, req.Type, req.Payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) claimJob(c *gin.Context) {
	claimed, err := s.store.ClaimJob(c.Request.Context(), c.Param("id"), c.GetString(ctxDaemonID))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !claimed {
		c.JSON(http.StatusConflict, controlplane.ClaimResponse{Claimed: false})
		return
	}
	c.JSON(http.StatusOK, controlplane.ClaimResponse{Claimed: true})
}

func (s *Server) jobStatus(c *gin.Context) {
	var req controlplane.JobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid job status: "+err.Error())
		return
	}
	if err := s.store.UpdateJobStatus(c.Request.Context(), c.GetString(ctxDaemonID), c.Param("id"), req.Status, req.Message); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) eligibleProjects(c *gin.Context) {
	projects, err := s.store.EligibleProjects(c.Request.Context(), c.GetString(ctxDaemonID), queryLimit(c, 50))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(projects))
}

func (s *Server) getProject(c *gin.Context) {
	p, err := s.store.Project(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) creationSnapshot(c *gin.Context) {
	snap, err := s.store.CreationSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getScript(c *gin.Context) {
	script, err := s.store.Script(c.Request.Context(), c.Param("id"), c.Query("language"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}

func (s *Server) saveScript(c *gin.Context) {
	var req controlplane.ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid script: "+err.Error())
		return
	}
	if err := s.store.SaveScript(c.Request.Context(), c.GetString(ctxDaemonID), c.Param("id"), req.Language, req.Text); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) projectStatus(c *gin.Context) {
	var req project.StatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid status update: "+err.Error())
		return
	}
	if err := s.store.UpdateProjectStatus(c.Request.Context(), c.GetString(ctxDaemonID), c.Param("id"), req); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getProgress(c *gin.Context) {
	rows, err := s.store.LanguageProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(rows))
}

func (s *Server) saveProgress(c *gin.Context) {
	var req controlplane.LanguageProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid language progress: "+err.Error())
		return
	}
	if err := s.store.SaveLanguageProgress(c.Request.Context(), c.GetString(ctxDaemonID), c.Param("id"), req.Rows); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listAssets(c *gin.Context) {
	assets, err := s.store.Assets(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(assets))
}

func (s *Server) registerAsset(c *gin.Context) {
	var asset project.Asset
	if err := c.ShouldBindJSON(&asset); err != nil {
		s.badRequest(c, "invalid asset: "+err.Error())
		return
	}
	asset.ProjectID = c.Param("id")
	created, err := s.store.RegisterAsset(c.Request.Context(), c.GetString(ctxDaemonID), asset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) history(c *gin.Context) {
	entries, err := s.store.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(entries))
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := s.store.Projects(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(projects))
}

func (s *Server) createProject(c *gin.Context) {
	var req controlplane.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid project: "+err.Error())
		return
	}
	p, err := s.store.CreateProject(c.Request.Context(), project.Project{UserID: req.UserID}, req.Snapshot)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("project created",
		logging.String(logging.FieldEventType, "project_created"),
		logging.String(logging.FieldProjectID, p.ID),
		logging.String("languages", strings.Join(p.Languages, ",")),
		logging.String("operator", c.GetString(ctxAdmin)))
	c.JSON(http.StatusCreated, p)
}

func (s *Server) rollback(c *gin.Context) {
	var req controlplane.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid rollback: "+err.Error())
		return
	}
	target, err := project.ParseStatus(string(req.TargetStatus))
	if err != nil {
		s.badRequest(c, err.Error())
		return
	}
	result, err := s.store.Rollback(c.Request.Context(), c.Param("id"), target, req.LanguagesToReset)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("project rolled back",
		logging.String(logging.FieldEventType, "project_rollback"),
		logging.String(logging.FieldProjectID, result.Project.ID),
		logging.String("target", string(target)),
		logging.String("reset", strings.Join(result.Reset, ",")),
		logging.String("operator", c.GetString(ctxAdmin)))
	c.JSON(http.StatusOK, controlplane.RollbackResponse{
		Project:  result.Project,
		Progress: nonNil(result.Progress),
		Reset:    nonNil(result.Reset),
	})
}

func (s *Server) approve(c *gin.Context) {
	var req controlplane.ApproveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, "invalid approval: "+err.Error())
			return
		}
	}
	p, err := s.store.Approve(c.Request.Context(), c.Param("id"), req.Voiceovers)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("project approved",
		logging.String(logging.FieldEventType, "project_approved"),
		logging.String(logging.FieldProjectID, p.ID),
		logging.String("status", string(p.Status)),
		logging.String("operator", c.GetString(ctxAdmin)))
	c.JSON(http.StatusOK, p)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
