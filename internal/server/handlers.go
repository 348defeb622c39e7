package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/collect"
	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/outreach"
	"github.com/sells-group/social-listener/internal/store"
	"github.com/sells-group/social-listener/internal/task"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Collect and analyze runs are started here and executed in the
// background; the tracker slot is claimed before the 202 goes out, so a
// second trigger sees 409 immediately.

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	// Body is optional; no sources means collect everything.
	var req struct {
		Sources []string `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	registered := make(map[model.Platform]bool)
	for _, p := range s.collector.Platforms() {
		registered[p] = true
	}
	platforms := make([]model.Platform, 0, len(req.Sources))
	for _, src := range req.Sources {
		p := model.Platform(src)
		if !registered[p] {
			respondError(w, http.StatusBadRequest, "unknown source "+src)
			return
		}
		platforms = append(platforms, p)
	}

	if err := s.tracker.Start(task.TypeCollect, 0, "starting"); err != nil {
		if errors.Is(err, task.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "collection already running")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	go func() {
		if _, err := s.collector.Run(context.Background(), platforms...); err != nil {
			zap.L().Error("collect run failed", zap.Error(err))
		}
	}()
	respond(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, _ *http.Request) {
	if err := s.tracker.Start(task.TypeAnalyze, 0, "starting"); err != nil {
		if errors.Is(err, task.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "analysis already running")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	go func() {
		if _, err := s.analyzer.Run(context.Background()); err != nil {
			zap.L().Error("analyze run failed", zap.Error(err))
		}
	}()
	respond(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	typ := task.Type(r.URL.Query().Get("type"))
	if !task.ValidType(typ) {
		respondError(w, http.StatusBadRequest, "unknown task type")
		return
	}
	respond(w, http.StatusOK, s.tracker.Status(typ))
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	posts, err := s.store.ListPosts(r.Context(), store.PostFilter{
		Platform: model.Platform(r.URL.Query().Get("platform")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, posts)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		s.importFile(w, r)
		return
	}

	var req struct {
		Type    string `json:"type"`
		Content string `json:"content"`
		Text    string `json:"text"` // alias for content
		Author  string `json:"author"`
		Label   string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		req.Content = req.Text
	}

	var summary collect.ImportSummary
	var err error
	switch req.Type {
	case "", "text":
		summary, err = collect.ImportText(r.Context(), s.store, req.Content, req.Author, req.Label)
	case "csv":
		summary, err = collect.ImportCSV(r.Context(), s.store, strings.NewReader(req.Content))
	default:
		respondError(w, http.StatusBadRequest, "unknown import type, expected text or csv")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respond(w, http.StatusOK, summary)
}

func (s *Server) importFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	var summary collect.ImportSummary
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		summary, err = collect.ImportCSV(r.Context(), s.store, file)
	case ".xlsx":
		summary, err = collect.ImportXLSX(r.Context(), s.store, file)
	default:
		respondError(w, http.StatusBadRequest, "unsupported file type, expected .csv or .xlsx")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respond(w, http.StatusOK, summary)
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	leads, err := s.store.ListLeads(r.Context(), store.LeadFilter{
		Status: model.LeadStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, leads)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.store.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lead == nil {
		respondError(w, http.StatusNotFound, "lead not found")
		return
	}
	respond(w, http.StatusOK, lead)
}

func (s *Server) handleUpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Status model.LeadStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidLeadStatus(req.Status) {
		respondError(w, http.StatusBadRequest, "unknown lead status")
		return
	}

	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lead == nil {
		respondError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err := s.store.UpdateLeadStatus(r.Context(), id, req.Status); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (s *Server) handleListOutreach(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	recs, err := s.store.ListOutreach(r.Context(), store.OutreachFilter{
		Status: model.OutreachStatus(r.URL.Query().Get("status")),
		LeadID: r.URL.Query().Get("lead_id"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, recs)
}

func (s *Server) handleUpdateOutreachStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status   model.OutreachStatus `json:"status"`
		Response string               `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.UpdateOutreachStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Response); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (s *Server) handleGenerateOutreach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID  string                `json:"lead_id"`
		Channel model.OutreachChannel `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel == "" {
		req.Channel = model.ChannelEmail
	}
	if !model.ValidChannel(req.Channel) {
		respondError(w, http.StatusBadRequest, "unknown outreach channel")
		return
	}

	set, err := s.loadSettings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lead, err := s.store.GetLead(r.Context(), req.LeadID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lead == nil {
		respondError(w, http.StatusNotFound, "lead not found")
		return
	}

	draft, err := s.drafter.Draft(r.Context(), *lead, req.Channel, set)
	if err != nil {
		var gerr *outreach.GenerationError
		if errors.As(err, &gerr) {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.drafter.Commit(r.Context(), draft)
	if err != nil {
		if errors.Is(err, store.ErrOutreachNotPending) {
			respondError(w, http.StatusConflict, "outreach for this lead and channel was already sent")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, saved)
}

// handleSendOutreach marks a draft sent, addressed either by record id or
// by (lead_id, channel).
func (s *Server) handleSendOutreach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string                `json:"id"`
		LeadID  string                `json:"lead_id"`
		Channel model.OutreachChannel `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := req.ID
	if id == "" {
		if req.LeadID == "" {
			respondError(w, http.StatusBadRequest, "id or lead_id required")
			return
		}
		if req.Channel == "" {
			req.Channel = model.ChannelEmail
		}
		if !model.ValidChannel(req.Channel) {
			respondError(w, http.StatusBadRequest, "unknown outreach channel")
			return
		}
		rec, err := s.store.GetOutreach(r.Context(), req.LeadID, req.Channel)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rec == nil {
			respondError(w, http.StatusNotFound, "no outreach draft for lead")
			return
		}
		id = rec.ID
	}

	if err := s.store.UpdateOutreachStatus(r.Context(), id, model.OutreachStatusSent, ""); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": string(model.OutreachStatusSent)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := s.store.GetSettings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, raw)
}

// handleUpdateSettings validates the merged result before writing anything,
// so a bad value cannot leave the table half-updated.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(updates) == 0 {
		respondError(w, http.StatusBadRequest, "no settings in request")
		return
	}
	for key := range updates {
		if _, ok := model.DefaultSettings[key]; !ok {
			respondError(w, http.StatusBadRequest, "unknown setting "+key)
			return
		}
	}

	raw, err := s.store.GetSettings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for key, value := range updates {
		raw[key] = value
	}
	if _, err := model.ParseSettings(raw); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	for key, value := range updates {
		if err := s.store.UpdateSetting(r.Context(), key, value); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respond(w, http.StatusOK, raw)
}

func (s *Server) loadSettings(ctx context.Context) (model.Settings, error) {
	raw, err := s.store.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	return model.ParseSettings(raw)
}

// paging parses limit/offset query params, writing a 400 on bad input.
func paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	var err error
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return 0, 0, false
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			respondError(w, http.StatusBadRequest, "invalid offset")
			return 0, 0, false
		}
	}
	return limit, offset, true
}
