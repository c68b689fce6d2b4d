// Package http provides the HTTP handlers for the inboxagent server.
package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/inboxagent/inboxagent/internal/domain"
	"github.com/inboxagent/inboxagent/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	svc            *service.Service
	frontendURL    string
	groqConfigured bool
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, frontendURL string, groqConfigured bool) *Handler {
	return &Handler{
		svc:            svc,
		frontendURL:    frontendURL,
		groqConfigured: groqConfigured,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.POST("/authenticate", h.Authenticate)
	e.GET("/oauth2callback", h.OAuth2Callback)

	e.GET("/emails/unread", h.UnreadEmails)
	e.GET("/emails/drafts", h.Drafts)
	e.POST("/emails/edit-draft", h.EditDraft)
	e.POST("/emails/regenerate", h.RegenerateDraft)
	e.POST("/emails/send", h.SendDraft)

	e.GET("/health", h.Health)
}

// Root returns service status.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":         "inboxagent API",
		"status":          "active",
		"groq_configured": h.groqConfigured,
	})
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Authenticate reports the auth state. With a usable credential it returns
// the account identity; otherwise it returns the consent URL to visit.
func (h *Handler) Authenticate(c echo.Context) error {
	status := h.svc.CheckAuth(c.Request().Context())
	if status.Authenticated {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "authenticated",
			"email":  status.Email,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "needs_auth",
		"auth_url": status.AuthURL,
	})
}

// OAuth2Callback completes the consent flow and bounces the browser back to
// the frontend with the outcome in the query string.
func (h *Handler) OAuth2Callback(c echo.Context) error {
	state := c.QueryParam("state")
	code := c.QueryParam("code")

	if err := h.svc.CompleteAuth(c.Request().Context(), state, code); err != nil {
		return c.Redirect(http.StatusFound, h.frontendURL+"/?auth=error&detail="+domain.ErrorCode(err))
	}
	return c.Redirect(http.StatusFound, h.frontendURL+"/?auth=success")
}

// UnreadEmails refreshes the inbox and returns the unread messages with
// their drafts, plus any messages skipped because generation failed.
func (h *Handler) UnreadEmails(c echo.Context) error {
	view, err := h.svc.RefreshInbox(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"emails":  draftViews(view.Drafts),
		"skipped": view.Skipped,
		"total":   len(view.Drafts),
	})
}

// Drafts returns the current drafts from the store without touching either
// provider.
func (h *Handler) Drafts(c echo.Context) error {
	drafts := h.svc.Drafts(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"drafts": draftViews(drafts),
		"total":  len(drafts),
	})
}

// EditDraftRequest is the edit-draft request body.
type EditDraftRequest struct {
	EmailID    string `json:"email_id"`
	DraftReply string `json:"draft_reply"`
}

// EditDraft replaces a draft's reply text.
func (h *Handler) EditDraft(c echo.Context) error {
	var req EditDraftRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	draft, err := h.svc.EditDraft(c.Request().Context(), req.EmailID, req.DraftReply)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "draft_updated",
		"draft":  draftView(draft),
	})
}

// RegenerateRequest is the regenerate request body.
type RegenerateRequest struct {
	EmailID string `json:"email_id"`
}

// RegenerateDraft overwrites a draft's reply with a fresh generator call.
func (h *Handler) RegenerateDraft(c echo.Context) error {
	var req RegenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	draft, err := h.svc.RegenerateDraft(c.Request().Context(), req.EmailID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "draft_regenerated",
		"draft":  draftView(draft),
	})
}

// SendRequest is the approve-and-send request body.
type SendRequest struct {
	EmailID string `json:"email_id"`
}

// SendDraft approves the draft and sends its current reply text.
func (h *Handler) SendDraft(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	draft, warn, err := h.svc.ApproveAndSend(c.Request().Context(), req.EmailID)
	if err != nil {
		return errorJSON(c, err)
	}

	resp := map[string]interface{}{
		"status": "sent",
		"draft":  draftView(draft),
	}
	if warn != nil {
		resp["warning"] = warn.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// DraftView is the wire shape of a draft.
type DraftView struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Snippet   string `json:"snippet"`
	ReplyText string `json:"reply_text"`
	State     string `json:"state"`
}

func draftView(d domain.Draft) DraftView {
	return DraftView{
		MessageID: d.MessageID,
		Sender:    d.Sender,
		Subject:   d.Subject,
		Snippet:   d.Snippet,
		ReplyText: d.ReplyText,
		State:     string(d.State),
	}
}

func draftViews(drafts []domain.Draft) []DraftView {
	out := make([]DraftView, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, draftView(d))
	}
	return out
}

// errorJSON maps a domain error to its HTTP status and a distinguishable
// reason code.
func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{
		"error": err.Error(),
		"code":  domain.ErrorCode(err),
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSendBlocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSendFailed), errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
