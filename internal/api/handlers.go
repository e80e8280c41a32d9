package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// decodeBody decodes a JSON body into v. An empty body is allowed when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	slog.Warn("Server.decodeBody: failed to decode JSON", "error", err, "path", r.URL.Path)
	writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "mindcare"}))
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	turn, err := s.manager.Start(r.Context(), req.UserID)
	if err != nil {
		writeError(w, "createSessionHandler", err)
		return
	}
	slog.Info("Server.createSessionHandler: session created", "sessionID", turn.SessionID, "user_set", req.UserID != "")
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Session created", turn))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "getSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}

func (s *Server) submitTextHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TextRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	turn, err := s.manager.SubmitText(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		writeError(w, "submitTextHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turn))
}

func (s *Server) submitChoiceHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChoiceRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	turn, err := s.manager.SubmitChoice(r.Context(), mux.Vars(r)["id"], *req.Value)
	if err != nil {
		writeError(w, "submitChoiceHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turn))
}

func (s *Server) quitHandler(w http.ResponseWriter, r *http.Request) {
	turn, err := s.manager.Quit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "quitHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turn))
}

func (s *Server) restartHandler(w http.ResponseWriter, r *http.Request) {
	turn, err := s.manager.Restart(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "restartHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turn))
}

func (s *Server) promptHandler(w http.ResponseWriter, r *http.Request) {
	p, ok, err := s.manager.Prompt(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "promptHandler", err)
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("No question pending", nil))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "resultsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

func (s *Server) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.manager.Transcript(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "transcriptHandler", err)
		return
	}
	if entries == nil {
		entries = []models.TranscriptEntry{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}

func (s *Server) putProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if err := models.ValidateUserID(userID); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	var req models.ProfileRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	profile := models.Profile{UserID: userID, DisplayName: req.DisplayName, UpdatedAt: time.Now().UTC()}
	if err := s.store.SaveProfile(profile); err != nil {
		writeError(w, "putProfileHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Profile saved", profile))
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.store.GetReceipts()
	if err != nil {
		writeError(w, "receiptsHandler", err)
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.twilio == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Twilio channel not enabled"))
		return
	}
	s.twilio.TwilioWebhookHandler(w, r)
}
