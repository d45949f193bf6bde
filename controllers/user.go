// controllers/user.go
package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"proxy-admin/models"
	"proxy-admin/utils"
)

// AuthController signs the operator in
type AuthController struct {
	Admin models.Admin
	JWT   *utils.JWTManager
}

func NewAuthController(admin models.Admin, jwt *utils.JWTManager) *AuthController {
	return &AuthController{Admin: admin, JWT: jwt}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges the operator's credentials for a bearer token
func (ac *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var creds loginRequest
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, r, err, "Invalid input")
		return
	}

	if !strings.EqualFold(creds.Email, ac.Admin.Email) {
		log.WithField("email", creds.Email).Warn("login for unknown operator")
		utils.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err := utils.CheckPassword(ac.Admin.PasswordHash, creds.Password); err != nil {
		log.WithField("email", creds.Email).Warn("login with wrong password")
		utils.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := ac.JWT.GenerateJWT(ac.Admin.Email, utils.RoleAdmin)
	if err != nil {
		respondError(w, r, err, "Error generating token")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ClientStore reads customer accounts
type ClientStore interface {
	List(ctx context.Context, search string) ([]models.Client, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Client, error)
	TouchLastMessaged(ctx context.Context, id string, at time.Time) error
}

// EmailSender delivers one plain-text message
type EmailSender interface {
	SendEmail(toEmail, subject, textContent string) error
}

// ClientController lists customers and messages them
type ClientController struct {
	Clients ClientStore
	Email   EmailSender
	now     func() time.Time
}

func NewClientController(clients ClientStore, email EmailSender) *ClientController {
	return &ClientController{Clients: clients, Email: email, now: time.Now}
}

// GetClients lists customers, optionally filtered by ?search= on email
func (cc *ClientController) GetClients(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	clients, err := cc.Clients.List(ctx, r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, r, err, "Failed to fetch clients")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"clients": clients})
}

const (
	messageConcurrency = 8
	messageTimeout     = 2 * time.Minute
)

type messageRequest struct {
	ClientIDs []string `json:"clientIds" validate:"required,min=1,dive,required"`
	Subject   string   `json:"subject" validate:"required"`
	Body      string   `json:"body" validate:"required"`
}

// MessageClients emails every selected client and stamps lastMessaged.
// At most messageConcurrency sends run at once; one failure fails the batch
// but sent messages stay sent.
func (cc *ClientController) MessageClients(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Failed to send messages")
		return
	}

	ctx, cancel := withTimeout(r, messageTimeout)
	defer cancel()
	clients, err := cc.Clients.FindByIDs(ctx, req.ClientIDs)
	if err != nil {
		respondError(w, r, err, "Failed to send messages")
		return
	}
	if len(clients) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "No matching clients")
		return
	}

	var g errgroup.Group
	g.SetLimit(messageConcurrency)
	for _, c := range clients {
		g.Go(func() error {
			if c.Email == models.DefaultClientEmail {
				return fmt.Errorf("client %s has no email", c.ID)
			}
			// sends cannot be cancelled, so none starts once the batch timed out
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("client %s: %w", c.ID, err)
			}
			if err := cc.Email.SendEmail(c.Email, req.Subject, req.Body); err != nil {
				return fmt.Errorf("client %s: %w", c.ID, err)
			}
			if err := cc.Clients.TouchLastMessaged(ctx, c.ID, cc.now().UTC()); err != nil {
				return fmt.Errorf("client %s: %w", c.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		respondError(w, r, err, "Failed to send messages")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Messages sent successfully",
		"sent":    len(clients),
	})
}
