package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/derive/internal/logger"
	"github.com/liamcoop/derive/rules"
	"github.com/liamcoop/derive/transform"
	"github.com/liamcoop/derive/workspace"
)

// maxImportBytes bounds rule import bodies
const maxImportBytes = 4 << 20

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "healthy",
		Workspaces: len(s.manager.List()),
		Storage:    "memory",
	}
	if s.db != nil {
		resp.Storage = "postgres"
		if err := s.db.Ping(); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Counters())
}

func (s *Server) workspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := s.manager.Get(chi.URLParam(r, "workspaceId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return nil, false
	}
	return ws, true
}

func describe(ws *workspace.Workspace) WorkspaceResponse {
	resp := WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		CreatedAt: ws.CreatedAt,
		Records:   ws.RecordCount(),
		Stale:     ws.Stale(),
	}
	if list, err := ws.Rules.Rules(); err == nil {
		resp.Rules = len(list)
	}
	if _, err := ws.Result(); err == nil {
		resp.HasResult = true
	}
	return resp
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	out := WorkspacesListResponse{Workspaces: []WorkspaceResponse{}}
	for _, ws := range s.manager.List() {
		out.Workspaces = append(out.Workspaces, describe(ws))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ws, err := s.manager.CreateWorkspace(req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to create workspace", err)
		return
	}

	respondJSON(w, http.StatusCreated, describe(ws))
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, describe(ws))
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(chi.URLParam(r, "workspaceId")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workspace.ErrWorkspaceNotFound) {
			status = http.StatusNotFound
		}
		respondError(w, status, "failed to delete workspace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRecords(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req SetRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ws.SetRecords(req.Records)
	respondJSON(w, http.StatusOK, describe(ws))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	list, err := ws.Rules.Rules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.rule(req.ID)
	if err := ws.Rules.Add(rule); err != nil {
		respondError(w, statusFor(err), "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	rule, err := ws.Rules.Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// The path id wins; ids are stable.
	rule := req.rule(chi.URLParam(r, "ruleId"))
	if err := ws.Rules.Update(rule); err != nil {
		respondError(w, statusFor(err), "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	if err := ws.Rules.Delete(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, statusFor(err), "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveRule(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req MoveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position == nil {
		respondError(w, http.StatusBadRequest, "position is required", err)
		return
	}

	if err := ws.Rules.Move(chi.URLParam(r, "ruleId"), *req.Position); err != nil {
		respondError(w, statusFor(err), "failed to move rule", err)
		return
	}
	s.handleListRules(w, r)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required", err)
		return
	}

	id := chi.URLParam(r, "ruleId")
	if err := ws.Rules.SetEnabled(id, *req.Enabled); err != nil {
		respondError(w, statusFor(err), "failed to toggle rule", err)
		return
	}

	rule, err := ws.Rules.Get(id)
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleExportRules(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	data, err := ws.ExportRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to export rules", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="rules.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleImportRules(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	n, err := ws.ImportRules(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule definitions", err)
		return
	}
	respondJSON(w, http.StatusOK, ImportRulesResponse{Imported: n})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	res, err := ws.Apply()
	if err != nil {
		respondError(w, statusFor(err), "transformation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, SummaryResponse{
		Success: res.Summary.Success(),
		Fields:  res.Fields,
		Summary: res.Summary,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	res, err := ws.Result()
	if err != nil {
		respondError(w, statusFor(err), "no summary available", err)
		return
	}

	respondJSON(w, http.StatusOK, SummaryResponse{
		Success: res.Summary.Success(),
		Stale:   ws.Stale(),
		Fields:  res.Fields,
		Summary: res.Summary,
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req PreviewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	limit := req.Limit
	if limit <= 0 || limit > s.cfg.PreviewLimit {
		limit = s.cfg.PreviewLimit
	}

	res, err := ws.Result()
	if err != nil {
		respondError(w, statusFor(err), "no result to preview", err)
		return
	}

	respondJSON(w, http.StatusOK, PreviewResponse{
		Records: res.Preview(limit, req.Visibility),
		Total:   len(res.Records),
	})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrWorkspaceNotFound),
		errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, workspace.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrDuplicateRule):
		return http.StatusConflict
	case errors.Is(err, transform.ErrNoRecords):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}

	if status >= 500 {
		logger.ErrorHttp5xx()
		logger.Error(message, "status", status, "error", err)
	} else {
		logger.WarnHttp4xx(status)
	}

	respondJSON(w, status, response)
}
