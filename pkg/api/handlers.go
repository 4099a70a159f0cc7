package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-go-golems/vizthinker/pkg/export"
	"github.com/go-go-golems/vizthinker/pkg/service"
	"github.com/go-go-golems/vizthinker/pkg/tree"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, session, err := s.svc.Signup(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user_id":    user.ID,
		"username":   user.Username,
		"session_id": session.ID,
	})
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  res.User.ID,
		"username": res.User.Username,
		"sessions": res.Sessions,
	})
}

func (s *Server) createSession(c *gin.Context) {
	userID, err := tree.ParseUserID(c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	session, err := s.svc.CreateSession(c.Request.Context(), userID, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) listSessions(c *gin.Context) {
	userID, err := tree.ParseUserID(c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	sessions, err := s.svc.ListSessions(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*tree.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) deleteSession(c *gin.Context) {
	sessionID, err := tree.ParseSessionID(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok, err := s.svc.DeleteSession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

type chatRequest struct {
	Prompt   string          `json:"prompt"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	ParentID *tree.MessageID `json:"parent_id"`
	IsBranch bool            `json:"is_branch"`
	// accepted for older frontends
	IsBranchCamel *bool           `json:"isBranch"`
	Position      json.RawMessage `json:"position"`
}

func (s *Server) chat(c *gin.Context) {
	sessionID, err := tree.ParseSessionID(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	isBranch := req.IsBranch
	if req.IsBranchCamel != nil {
		isBranch = *req.IsBranchCamel
	}

	res, err := s.svc.Chat(c.Request.Context(), service.ChatRequest{
		SessionID: sessionID,
		Prompt:    req.Prompt,
		Provider:  req.Provider,
		Model:     req.Model,
		ParentID:  req.ParentID,
		IsBranch:  isBranch,
		Position:  req.Position,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type createMessageRequest struct {
	Prompt   string          `json:"prompt"`
	Response string          `json:"response"`
	ParentID *tree.MessageID `json:"parent_id"`
	Position json.RawMessage `json:"position"`
	IsBranch bool            `json:"is_branch"`
}

func (s *Server) createMessage(c *gin.Context) {
	sessionID, err := tree.ParseSessionID(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := s.svc.CreateMessage(c.Request.Context(), sessionID, req.Prompt, req.Response, req.ParentID, req.Position, req.IsBranch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) getMessages(c *gin.Context) {
	sessionID, err := tree.ParseSessionID(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	msgs, err := s.svc.GetMessages(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*tree.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) deleteAllMessages(c *gin.Context) {
	sessionID, err := tree.ParseSessionID(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	n, err := s.svc.DeleteAllMessages(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) applyPositions(c *gin.Context) {
	sessionID, err := tree.ParseSessionID(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req struct {
		Positions []json.RawMessage `json:"positions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := s.svc.ApplyPositions(c.Request.Context(), sessionID, req.Positions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) exportSession(c *gin.Context) {
	sessionID, err := tree.ParseSessionID(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		writeError(c, err)
		return
	}
	opts := export.DefaultOptions()
	opts.TermStyle = "notty"

	var buf bytes.Buffer
	if err := s.svc.Export(c.Request.Context(), sessionID, format, &buf, opts); err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *Server) resolvePath(c *gin.Context) {
	messageID, err := tree.ParseMessageID(c.Param("message_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	path, err := s.svc.ResolvePath(c.Request.Context(), messageID)
	if err != nil {
		writeError(c, err)
		return
	}
	if path == nil {
		path = []tree.Exchange{}
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (s *Server) deleteMessage(c *gin.Context) {
	messageID, err := tree.ParseMessageID(c.Param("message_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok, err := s.svc.DeleteMessage(c.Request.Context(), messageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

func (s *Server) updateAPIKeys(c *gin.Context) {
	var req struct {
		APIKeys map[string]string `json:"api_keys" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := s.svc.Registry().Keys().Update(req.APIKeys)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"updated_providers": updated,
	})
}
