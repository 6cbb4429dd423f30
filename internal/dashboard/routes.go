package dashboard

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/batch"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/channel"
	"github.com/zulandar/switchboard/internal/report"
	"github.com/zulandar/switchboard/internal/session"
)

// maxUpload bounds multipart campaign submissions.
const maxUpload = 32 << 20

type handlers struct {
	deps Deps
	log  zerolog.Logger
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.startSession)
	api.POST("/sessions/:name/confirm", h.confirmSession)
	api.DELETE("/sessions/:name", h.logoutSession)

	api.GET("/campaigns/:channel", h.listCampaigns)
	api.POST("/campaigns/:channel", h.submitCampaign)
	api.GET("/campaigns/:channel/:id/report", h.campaignReport)
	api.GET("/campaigns/:channel/:id/download", h.downloadReport)

	api.GET("/templates", h.listTemplates)
	api.POST("/templates", h.createTemplate)

	api.GET("/events", h.events)
}

func (h *handlers) health(c *gin.Context) {
	active := 0
	for _, s := range h.deps.Sessions.List() {
		if s.Active() {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "activeLines": active})
}

// --- sessions ---

type startSessionRequest struct {
	SessionName string `json:"sessionName"`
	Method      string `json:"method"`
	PhoneNumber string `json:"phoneNumber"`
}

func (h *handlers) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.deps.Sessions.List()})
}

func (h *handlers) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.NewValidation("body", err.Error()))
		return
	}
	method, err := session.ParseMethod(req.Method)
	if err != nil {
		h.fail(c, apperr.NewValidation("method", err.Error()))
		return
	}
	s, err := h.deps.Sessions.Initiate(c.Request.Context(), req.SessionName, method, req.PhoneNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) confirmSession(c *gin.Context) {
	s, err := h.deps.Sessions.AcknowledgeManualConfirmation(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) logoutSession(c *gin.Context) {
	if ok, _ := strconv.ParseBool(c.Query("confirm")); !ok {
		h.fail(c, apperr.NewValidation("confirm", "logging out a line cancels campaigns in flight through it; repeat with confirm=true"))
		return
	}
	name := c.Param("name")
	if err := h.deps.Sessions.Logout(c.Request.Context(), name); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionName": name, "state": session.Disconnected})
}

// --- campaigns ---

func parseChannel(c *gin.Context) (campaign.Channel, error) {
	ch, err := campaign.ParseChannel(c.Param("channel"))
	if err != nil {
		return "", apperr.NewValidation("channel", err.Error())
	}
	return ch, nil
}

func (h *handlers) listCampaigns(c *gin.Context) {
	ch, err := parseChannel(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.deps.Reports.ListCampaigns(c.Request.Context(), ch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch, "campaigns": list})
}

func (h *handlers) campaignReport(c *gin.Context) {
	ch, err := parseChannel(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.deps.Reports.GetReport(c.Request.Context(), ch, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handlers) downloadReport(c *gin.Context) {
	ch, err := parseChannel(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	id := c.Param("id")
	data, err := h.deps.Reports.Download(c.Request.Context(), ch, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.DownloadRef(id)))
	c.Data(http.StatusOK, batch.CSVMIME, data)
}

func (h *handlers) submitCampaign(c *gin.Context) {
	ch, err := parseChannel(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := c.Request.ParseMultipartForm(maxUpload); err != nil {
		h.fail(c, apperr.NewValidation("body", "expected a multipart form: "+err.Error()))
		return
	}
	draft, err := draftFromForm(ch, c.Request.MultipartForm)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.deps.Dispatcher.Dispatch(c.Request.Context(), draft)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// draftFromForm builds a channel draft from the submitted form fields.
func draftFromForm(ch campaign.Channel, form *multipart.Form) (channel.Draft, error) {
	csv, err := formFile(form, "csv")
	if err != nil {
		return nil, err
	}
	switch ch {
	case campaign.TextMessage:
		return channel.SMSDraft{
			Message:  value(form, "message"),
			Batch:    csv,
			Flash:    flag(form, "flash"),
			Priority: flag(form, "priority"),
		}, nil

	case campaign.Email:
		tpl := channel.EmailTemplate{
			Subject:   value(form, "subject"),
			Body:      value(form, "body"),
			BannerURL: value(form, "bannerUrl"),
			Style:     value(form, "style"),
		}
		if raw := value(form, "buttons"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &tpl.Buttons); err != nil {
				return nil, apperr.NewValidation("buttons", "buttons must be a JSON array of {label, url, color}")
			}
		}
		if tpl.Banner, err = formFile(form, "banner"); err != nil {
			return nil, err
		}
		return channel.EmailDraft{Template: tpl, Batch: csv}, nil

	case campaign.ChatLine:
		if name := value(form, "templateName"); name != "" {
			return channel.TemplateBroadcastDraft{
				Session:      value(form, "session"),
				TemplateName: name,
				Language:     value(form, "language"),
				MediaURL:     value(form, "mediaUrl"),
				Subject:      value(form, "subject"),
				Batch:        csv,
				EventTag:     value(form, "eventTag"),
			}, nil
		}
		image, err := formFile(form, "image")
		if err != nil {
			return nil, err
		}
		return channel.ChatDraft{
			Session:  value(form, "session"),
			Subject:  value(form, "subject"),
			Message:  value(form, "message"),
			Batch:    csv,
			Image:    image,
			EventTag: value(form, "eventTag"),
		}, nil
	}
	return nil, apperr.NewValidation("channel", fmt.Sprintf("unsupported channel %q", ch))
}

func value(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func flag(form *multipart.Form, key string) bool {
	b, _ := strconv.ParseBool(value(form, key))
	return b
}

// formFile reads an optional uploaded file. A missing field yields nil.
func formFile(form *multipart.Form, key string) (*batch.File, error) {
	headers := form.File[key]
	if len(headers) == 0 {
		return nil, nil
	}
	fh := headers[0]
	f, err := fh.Open()
	if err != nil {
		return nil, &apperr.FileReadError{Path: fh.Filename, Err: err}
	}
	defer f.Close()
	return batch.FromReader(fh.Filename, f)
}

// --- templates ---

func (h *handlers) templates(c *gin.Context) (Templates, bool) {
	if h.deps.Templates == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: "chat templates are not configured"})
		return nil, false
	}
	return h.deps.Templates, true
}

func (h *handlers) listTemplates(c *gin.Context) {
	tc, ok := h.templates(c)
	if !ok {
		return
	}
	list, err := tc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

func (h *handlers) createTemplate(c *gin.Context) {
	tc, ok := h.templates(c)
	if !ok {
		return
	}
	var t channel.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		h.fail(c, apperr.NewValidation("body", err.Error()))
		return
	}
	st, err := tc.Create(c.Request.Context(), t)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}
