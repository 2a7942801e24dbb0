package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
	"github.com/IVANFROL/reklama-oleg/internal/validate"
)

// allowedMedia maps accepted upload content types to their media kind. Short
// video names are what older clients send.
var allowedMedia = map[string]string{
	"image/jpeg":      models.MediaImage,
	"image/png":       models.MediaImage,
	"image/gif":       models.MediaImage,
	"image/webp":      models.MediaImage,
	"video/mp4":       models.MediaVideo,
	"video/avi":       models.MediaVideo,
	"video/x-msvideo": models.MediaVideo,
	"video/mov":       models.MediaVideo,
	"video/quicktime": models.MediaVideo,
	"video/wmv":       models.MediaVideo,
	"video/x-ms-wmv":  models.MediaVideo,
	"video/x-ms-asf":  models.MediaVideo,
	"video/flv":       models.MediaVideo,
	"video/x-flv":     models.MediaVideo,
	"video/webm":      models.MediaVideo,
}

var formValidator = validate.MustNew()

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeFields answers 422 with one entry per field, sorted by field name.
func writeFields(w http.ResponseWriter, fields map[string]string) {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	detail := make([]fieldError, 0, len(names))
	for _, n := range names {
		detail = append(detail, fieldError{Loc: []string{"body", n}, Msg: fields[n], Type: "value_error"})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"detail": detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFields(w, map[string]string{"_": "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := formValidator.Register(req, req.Password); err != nil {
		writeFields(w, apierr.FieldErrors(err))
		return
	}
	id, err := s.auth.Register(req)
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		writeDetail(w, s.status(http.StatusConflict), "Username already registered")
	case errors.Is(err, ErrDuplicateEmail):
		writeDetail(w, s.status(http.StatusConflict), "Email already registered")
	case err != nil:
		s.log.Error("register failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "registration failed")
	default:
		writeJSON(w, http.StatusOK, id)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeFields(w, map[string]string{"_": "invalid form body"})
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	missing := map[string]string{}
	if username == "" {
		missing["username"] = "field required"
	}
	if password == "" {
		missing["password"] = "field required"
	}
	if len(missing) > 0 {
		writeFields(w, missing)
		return
	}
	token, err := s.auth.Login(username, password)
	if errors.Is(err, ErrInvalidCredentials) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if err != nil {
		s.log.Error("login failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, models.Token{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFromCtx(r.Context()))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Balance{Balance: identityFromCtx(r.Context()).Balance})
}

func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ActiveAds())
}

func (s *Server) handleViewAd(w http.ResponseWriter, r *http.Request) {
	var req models.ViewAdRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.store.ViewAd(identityFromCtx(r.Context()).ID, req.AdID)
	switch {
	case errors.Is(err, ErrAdNotFound):
		writeDetail(w, http.StatusNotFound, "Ad not found")
	case errors.Is(err, ErrAlreadyViewed):
		writeDetail(w, s.status(http.StatusConflict), "Ad already viewed today")
	case errors.Is(err, ErrUserNotFound):
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
	case err != nil:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeFields(w, map[string]string{"file": "field required"})
		return
	}
	defer file.Close()

	contentType := hdr.Header.Get("Content-Type")
	kind, ok := allowedMedia[contentType]
	if !ok {
		writeDetail(w, s.status(http.StatusUnsupportedMediaType), "Unsupported file type")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "read upload failed")
		return
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	name := uuid.NewString()
	if ext := strings.TrimPrefix(path.Ext(hdr.Filename), "."); ext != "" {
		name += "." + ext
	}
	s.store.SaveFile(name, contentType, data)
	writeJSON(w, http.StatusOK, models.Upload{
		Filename: name,
		URL:      "/uploads/" + name,
		Type:     kind,
		Size:     int64(len(data)),
	})
}

func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	contentType, data, ok := s.store.File(r.PathValue("name"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleApplicationCost(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ApplicationCost{
		Cost:    s.opts.ApplicationCost,
		Message: fmt.Sprintf("Submitting an application costs %g coins", s.opts.ApplicationCost),
	})
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var draft models.ApplicationDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	if err := formValidator.Application(draft); err != nil {
		writeFields(w, apierr.FieldErrors(err))
		return
	}
	id := identityFromCtx(r.Context())
	app, err := s.store.CreateApplication(id.ID, draft, s.opts.ApplicationCost)
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		balance := id.Balance
		if cur, err := s.store.Account(id.ID); err == nil {
			balance = cur.Balance
		}
		writeDetail(w, s.status(http.StatusPaymentRequired),
			fmt.Sprintf("Insufficient balance. Need %g coins, you have %g", s.opts.ApplicationCost, balance))
	case err != nil:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, app)
	}
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Applications(identityFromCtx(r.Context()).ID))
}

func (s *Server) handleListAllApplications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Applications(0))
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeFields(w, map[string]string{"application_id": "value is not a valid integer"})
		return
	}
	var req models.StatusUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := formValidator.Status(req.Status); err != nil {
		writeFields(w, apierr.FieldErrors(err))
		return
	}
	app, err := s.store.SetStatus(id, req.Status)
	switch {
	case errors.Is(err, ErrApplicationNotFound):
		writeDetail(w, http.StatusNotFound, "Application not found")
	case errors.Is(err, ErrAlreadyReviewed):
		writeDetail(w, http.StatusConflict, "Application already reviewed")
	case err != nil:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, app)
	}
}
