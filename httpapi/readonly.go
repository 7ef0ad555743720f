package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// taskView is the wire projection of a session.Task for the read-only
// status endpoint (spec.md §6 "Session status / tasks / workspace").
type taskView struct {
	TaskID      string `json:"task_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Summary     string `json:"summary,omitempty"`
}

func (s *Server) handleTasks(c *gin.Context) {
	sc, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	tasks := sc.Tasks.All()
	out := make([]taskView, len(tasks))
	for i, t := range tasks {
		v := taskView{TaskID: t.TaskID, Name: t.Name, Description: t.Description, Status: string(t.Status)}
		if t.Summary != nil {
			v.Summary = t.Summary.ResultSummary
		}
		out[i] = v
	}
	c.JSON(http.StatusOK, gin.H{"status": string(sc.Status()), "tasks": out})
}

// workspaceRoot resolves the on-disk directory backing sessionID's
// workspace, namespaced under the configured tools workspace directory.
func (s *Server) workspaceRoot(sessionID string) string {
	return filepath.Join(s.cfg.Tools.WorkspaceDir, sessionID)
}

func (s *Server) handleWorkspaceList(c *gin.Context) {
	sessionID := c.Param("id")
	root := s.workspaceRoot(sessionID)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"files": []string{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	c.JSON(http.StatusOK, gin.H{"files": names})
}

func (s *Server) handleWorkspaceDownload(c *gin.Context) {
	sessionID := c.Param("id")
	rel := strings.TrimPrefix(c.Param("path"), "/")
	root := s.workspaceRoot(sessionID)
	target := filepath.Join(root, rel)

	// Reject any resolved path escaping the session's workspace root.
	if !strings.HasPrefix(target, filepath.Clean(root)+string(filepath.Separator)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}
	c.File(target)
}
