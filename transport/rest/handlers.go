package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dyedai/shiritori-sugoroku/internal/entity"
	"github.com/dyedai/shiritori-sugoroku/internal/pkg"
)

func (that *Server) pingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type guestRequest struct {
	Name string `json:"name"`
}

type guestResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// guestHandler issues a session token for a display name so a client can
// open the realtime connection without a full account.
func (that *Server) guestHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "guestHandler")

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req guestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	user := &entity.User{
		ID:   pkg.GenerateNewSessionID(),
		Name: req.Name,
	}

	token, err := that.identity.Issue(r.Context(), user)
	if err != nil {
		log.Error("failed to issue token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(5 * time.Hour),
	})

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(guestResponse{ID: user.ID, Name: user.Name, Token: token}); err != nil {
		log.Error("failed to encode response", "error", err)
	}

	log.Info("guest token issued", "userID", user.ID, "name", user.Name)
}
