package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/vizthinker/pkg/responder"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ChatRequest struct {
	SessionID tree.SessionID  `json:"-"`
	Prompt    string          `json:"prompt"`
	Provider  string          `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
	ParentID  *tree.MessageID `json:"parent_id,omitempty"`
	IsBranch  bool            `json:"is_branch,omitempty"`
	Position  json.RawMessage `json:"position,omitempty"`
}

type ChatResult struct {
	Response string         `json:"response"`
	RecordID tree.MessageID `json:"record_id"`
}

// Chat answers a prompt in the context of the thread ending at its parent and
// stores the exchange as a new node.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, &tree.ValidationError{Field: "prompt", Index: -1, Reason: "required"}
	}
	if req.SessionID <= 0 {
		return nil, &tree.ValidationError{Field: "session_id", Index: -1, Reason: "must be a positive integer"}
	}
	_, ok, err := s.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &tree.ReferentialError{Resource: "session", ID: int64(req.SessionID)}
	}

	var history []tree.Exchange
	if req.ParentID != nil {
		parent, ok, err := s.repo.GetMessage(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &tree.ReferentialError{Resource: "message", ID: int64(*req.ParentID), Reason: "parent does not exist"}
		}
		if parent.SessionID != req.SessionID {
			return nil, &tree.ReferentialError{Resource: "message", ID: int64(*req.ParentID), Reason: "parent belongs to another session"}
		}
		history, err = s.repo.ResolvePath(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
	}

	r, err := s.registry.Responder(req.Provider)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("session_id", int64(req.SessionID)).
		Str("provider", req.Provider).
		Str("model", req.Model).
		Int("depth", len(history)).
		Bool("is_branch", req.IsBranch).
		Msg("Received chat request")

	callCtx := ctx
	if timeout := s.registry.Config().Timeout; timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	response, err := r.Respond(callCtx, &responder.Request{
		Prompt:   prompt,
		History:  history,
		IsBranch: req.IsBranch,
		Model:    req.Model,
	})
	if err != nil {
		return nil, errors.Wrap(err, "generating response")
	}

	id, err := s.CreateMessage(ctx, req.SessionID, prompt, response, req.ParentID, req.Position, req.IsBranch)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Response: response, RecordID: id}, nil
}
