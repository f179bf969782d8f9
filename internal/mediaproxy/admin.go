package mediaproxy

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const maxRequestBody = 8 << 20

type surveyRequest struct {
	OpenRosaServer string `json:"openRosaServer"`
	OpenRosaID     string `json:"openRosaId"`
}

type instanceRequest struct {
	Attachments map[string]string `json:"attachments"`
}

type rewriteRequest struct {
	Form  string `json:"form"`
	Model string `json:"model"`
}

func (s *Service) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Admin.APIKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_api_key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handlePutSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req surveyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OpenRosaServer == "" || req.OpenRosaID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_survey",
			"message": "openRosaServer and openRosaId are required",
		})
		return
	}
	if _, err := formListURL(req.OpenRosaServer, req.OpenRosaID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_survey", "message": err.Error()})
		return
	}
	survey := Survey{OpenRosaServer: req.OpenRosaServer, OpenRosaID: req.OpenRosaID}
	if err := s.store.PutSurvey(r.Context(), id, survey); err != nil {
		s.log.Error().Err(err).Str("survey", id).Msg("store survey")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store_failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePutInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req instanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.store.PutAttachments(r.Context(), id, req.Attachments); err != nil {
		s.log.Error().Err(err).Str("instance", id).Msg("store instance")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store_failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	n := s.cache.Clear()
	s.log.Info().Int("entries", n).Msg("resolution cache cleared")
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// handleRewrite substitutes jr:// references in a transformed form with the
// caller's local media paths.
func (s *Service) handleRewrite(w http.ResponseWriter, r *http.Request) {
	opts, err := s.describer.Describe(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "type"))
	rt := ResourceType(n)
	if err != nil || !rt.valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_resource_type"})
		return
	}
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req rewriteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	media, err := s.resolver.MediaMap(r.Context(), rt, id, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := s.rewriter.Rewrite(Document{Form: req.Form, Model: req.Model, Media: media})
	writeJSON(w, http.StatusOK, out)
}

func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_" + name})
		return "", false
	}
	return v, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body", "message": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
