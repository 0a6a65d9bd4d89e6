package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Romariozh/vim-deepl/internal/apperr"
	"github.com/Romariozh/vim-deepl/internal/audio"
	"github.com/Romariozh/vim-deepl/internal/bookmarks"
	"github.com/Romariozh/vim-deepl/internal/storage"
	"github.com/Romariozh/vim-deepl/internal/translation"
)

type statusBody struct {
	Status string `json:"status"`
}

// entryBody is the wire shape of a base cache row.
type entryBody struct {
	ID          int64  `json:"id"`
	Term        string `json:"term"`
	Translation string `json:"translation"`
	SrcLang     string `json:"src_lang"`
	DstLang     string `json:"dst_lang"`
	DetectedRaw string `json:"detected_raw"`
	CreatedAt   string `json:"created_at"`
	LastUsed    string `json:"last_used"`
	Count       int    `json:"count"`
	Hard        int    `json:"hard"`
	Ignore      bool   `json:"ignore"`
}

func entryToBody(e *storage.Entry) entryBody {
	return entryBody{
		ID:          e.ID,
		Term:        e.Term,
		Translation: e.Translation,
		SrcLang:     e.SrcLang,
		DstLang:     e.DstLang,
		DetectedRaw: e.DetectedRaw,
		CreatedAt:   e.CreatedAt,
		LastUsed:    e.LastUsed,
		Count:       e.Count,
		Hard:        e.Hard,
		Ignore:      e.Ignore,
	}
}

// handleGetEntry looks up a base cache row and counts the lookup as a use.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		writeError(w, apperr.New(apperr.CodeArgs, "term is required"))
		return
	}
	dst := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("dst_lang")))
	if dst == "" {
		dst = "RU"
	}

	ctx := r.Context()
	e, err := s.store.Repo().GetBaseEntryAnySrc(ctx, term, dst, "")
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, apperr.New(apperr.CodeNotFound, "no entry for %q/%s", term, dst))
			return
		}
		writeError(w, apperr.Wrap(apperr.CodeStorage, err, "entry lookup"))
		return
	}

	now := storage.NowString(s.now())
	if err := s.store.UpdateWithRetry(ctx, func(rp *storage.Repo) error {
		return rp.TouchBaseUsage(ctx, e.ID, now)
	}); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeStorage, err, "touch entry"))
		return
	}
	e.Count++
	e.LastUsed = now
	writeJSON(w, http.StatusOK, entryToBody(e))
}

// handlePostEntry inserts a translation pair directly into the base cache.
func (s *Server) handlePostEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term        string `json:"term"`
		Translation string `json:"translation"`
		SrcLang     string `json:"src_lang"`
		DstLang     string `json:"dst_lang"`
		DetectedRaw string `json:"detected_raw"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Term = strings.TrimSpace(req.Term)
	req.Translation = strings.TrimSpace(req.Translation)
	src := strings.ToUpper(strings.TrimSpace(req.SrcLang))
	dst := strings.ToUpper(strings.TrimSpace(req.DstLang))
	if req.Term == "" || req.Translation == "" || src == "" || dst == "" {
		writeError(w, apperr.New(apperr.CodeArgs, "term, translation, src_lang and dst_lang are required"))
		return
	}
	detected := strings.TrimSpace(req.DetectedRaw)
	if detected == "" {
		detected = src
	}

	ctx := r.Context()
	err := s.store.UpdateWithRetry(ctx, func(rp *storage.Repo) error {
		return rp.UpsertBaseEntry(ctx, storage.UpsertBaseParams{
			Term:        req.Term,
			Translation: req.Translation,
			SrcLang:     src,
			DstLang:     dst,
			DetectedRaw: detected,
			Now:         storage.NowString(s.now()),
		})
	})
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeStorage, err, "insert entry"))
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

// handleUseEntry bumps usage of an existing base cache row.
func (s *Server) handleUseEntry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.TrimSpace(q.Get("term"))
	if term == "" {
		writeError(w, apperr.New(apperr.CodeArgs, "term is required"))
		return
	}
	src := strings.ToUpper(strings.TrimSpace(q.Get("src_lang")))
	dst := strings.ToUpper(strings.TrimSpace(q.Get("dst_lang")))
	if dst == "" {
		dst = "RU"
	}

	ctx := r.Context()
	var (
		e   *storage.Entry
		err error
	)
	if src != "" {
		e, err = s.store.Repo().GetBaseEntry(ctx, term, src, dst)
	} else {
		e, err = s.store.Repo().GetBaseEntryAnySrc(ctx, term, dst, "")
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, apperr.New(apperr.CodeNotFound, "no entry for %q/%s", term, dst))
			return
		}
		writeError(w, apperr.Wrap(apperr.CodeStorage, err, "entry lookup"))
		return
	}
	if err := s.store.UpdateWithRetry(ctx, func(rp *storage.Repo) error {
		return rp.TouchBaseUsage(ctx, e.ID, storage.NowString(s.now()))
	}); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeStorage, err, "touch entry"))
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleTranslateWord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term       string `json:"term"`
		TargetLang string `json:"target_lang"`
		SrcHint    string `json:"src_hint"`
		Context    string `json:"context"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.translate.TranslateWord(r.Context(), translation.WordRequest{
		Word:       req.Term,
		TargetLang: req.TargetLang,
		SrcHint:    req.SrcHint,
		Context:    req.Context,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTranslateSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text       string `json:"text"`
		TargetLang string `json:"target_lang"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.translate.TranslateSelection(r.Context(), req.Text, req.TargetLang)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrainNext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SrcFilter      string  `json:"src_filter"`
		ExcludeCardIDs []int64 `json:"exclude_card_ids"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := s.trainer.Next(r.Context(), req.SrcFilter, req.ExcludeCardIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleTrainReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID    int64  `json:"card_id"`
		Grade     *int   `json:"grade"`
		SrcFilter string `json:"src_filter"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CardID == 0 || req.Grade == nil {
		writeError(w, apperr.New(apperr.CodeArgs, "card_id and grade are required"))
		return
	}
	item, err := s.trainer.Review(r.Context(), req.CardID, *req.Grade, req.SrcFilter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleMarkHard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word      string `json:"word"`
		SrcFilter string `json:"src_filter"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.trainer.MarkHard(r.Context(), req.Word, req.SrcFilter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMarkIgnore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word      string `json:"word"`
		EntryID   int64  `json:"entry_id"`
		SrcFilter string `json:"src_filter"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.trainer.MarkIgnore(r.Context(), req.Word, req.SrcFilter, req.EntryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAudioPlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioID    string `json:"audio_id"`
		Word       string `json:"word"`
		PlayServer *bool  `json:"play_server"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.audio.Play(r.Context(), req.AudioID, req.Word, req.PlayServer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAudioFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "audio_id")
	if !audio.ValidID(id) {
		writeError(w, apperr.New(apperr.CodeArgs, "invalid audio id %q", id))
		return
	}
	path, err := s.audio.FilePath(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) handleBookmarkMark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path   string `json:"path"`
		Lnum   int    `json:"lnum"`
		Col    int    `json:"col"`
		Length int    `json:"length"`
		Term   string `json:"term"`
		Kind   string `json:"kind"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.bookmarks.Upsert(r.Context(), bookmarks.UpsertRequest{
		Path:   req.Path,
		Lnum:   req.Lnum,
		Col:    req.Col,
		Length: req.Length,
		Term:   req.Term,
		Kind:   req.Kind,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBookmarkList(w http.ResponseWriter, r *http.Request) {
	res, err := s.bookmarks.List(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
