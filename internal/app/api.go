package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cam3ron2/branchscope/internal/dashboard"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/jobs"
	"github.com/cam3ron2/branchscope/internal/projectstate"
	"github.com/cam3ron2/branchscope/internal/reconcile"
	"github.com/cam3ron2/branchscope/internal/report"
	"github.com/cam3ron2/branchscope/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	contentTypeJSON = "application/json"
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	maxRequestBody = 1 << 20
)

type api struct {
	services *Services
	logger   *zap.Logger
}

// NewAPI returns the /api/v1 router. Every route is traced like the probe endpoints.
func NewAPI(services *Services) http.Handler {
	a := &api{services: services, logger: services.Logger}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	router := chi.NewRouter()
	traceMode := telemetry.TraceMode()
	handle := func(method, pattern, route string, fn http.HandlerFunc) {
		router.Method(method, pattern, wrapHTTPHandler(traceMode, route, fn))
	}

	handle(http.MethodGet, "/repos/{owner}/{repo}/dashboard", "dashboard", a.getDashboard)
	handle(http.MethodPost, "/repos/{owner}/{repo}/refresh", "refresh", a.refresh)
	handle(http.MethodGet, "/repos/{owner}/{repo}/health", "health", a.getHealth)
	handle(http.MethodPost, "/repos/{owner}/{repo}/enrichments", "enrichments.submit", a.submitEnrichment)
	handle(http.MethodGet, "/repos/{owner}/{repo}/report/compliance", "report.compliance", a.complianceReport)
	handle(http.MethodGet, "/repos/{owner}/{repo}/report/contributor", "report.contributor", a.contributorReport)

	handle(http.MethodGet, "/enrichments", "enrichments.list", a.listEnrichments)
	handle(http.MethodGet, "/enrichments/{id}", "enrichments.get", a.getEnrichment)
	handle(http.MethodDelete, "/enrichments/{id}", "enrichments.cancel", a.cancelEnrichment)

	handle(http.MethodGet, "/projects", "projects.list", a.listProjects)
	handle(http.MethodGet, "/projects/{owner}/{repo}/*", "projects.get", a.getProject)
	handle(http.MethodPut, "/projects/{owner}/{repo}/*", "projects.put", a.putProject)
	handle(http.MethodDelete, "/projects/{owner}/{repo}/*", "projects.delete", a.deleteProject)
	return router
}

func repoTarget(r *http.Request) dashboard.Target {
	return dashboard.Target{
		Owner:  chi.URLParam(r, "owner"),
		Repo:   chi.URLParam(r, "repo"),
		Branch: strings.TrimSpace(r.URL.Query().Get("branch")),
	}
}

// projectTarget reads the branch from the wildcard, which may contain slashes.
func projectTarget(r *http.Request) (dashboard.Target, error) {
	branch := strings.Trim(chi.URLParam(r, "*"), "/")
	if branch == "" {
		return dashboard.Target{}, &ValidationError{Err: errors.New("branch is required")}
	}
	return dashboard.Target{
		Owner:  chi.URLParam(r, "owner"),
		Repo:   chi.URLParam(r, "repo"),
		Branch: branch,
	}, nil
}

func (a *api) getDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.services.Collector.Collect(r.Context(), repoTarget(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	d, err := a.services.Collector.Refresh(r.Context(), repoTarget(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) getHealth(w http.ResponseWriter, r *http.Request) {
	d, err := a.services.Collector.Collect(r.Context(), repoTarget(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Health)
}

type enrichmentRequest struct {
	Branch string `json:"branch"`
	Author string `json:"author"`
}

func (a *api) submitEnrichment(w http.ResponseWriter, r *http.Request) {
	var body enrichmentRequest
	if err := decodeBody(r, &body); err != nil {
		a.writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Author) == "" {
		a.writeError(w, &ValidationError{Err: errors.New("author is required")})
		return
	}
	target := repoTarget(r)
	target.Branch = strings.TrimSpace(body.Branch)

	job, err := a.services.Jobs.Submit(r.Context(), jobs.Request{Target: target, Author: body.Author})
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/enrichments/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (a *api) listEnrichments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.services.Jobs.List())
}

func (a *api) getEnrichment(w http.ResponseWriter, r *http.Request) {
	job, err := a.services.Jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *api) cancelEnrichment(w http.ResponseWriter, r *http.Request) {
	job, err := a.services.Jobs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *api) complianceReport(w http.ResponseWriter, r *http.Request) {
	sections, err := report.ParseSections(r.URL.Query()["section"])
	if err != nil {
		a.writeError(w, &ValidationError{Err: err})
		return
	}
	d, err := a.services.Collector.Collect(r.Context(), repoTarget(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	now := a.services.now()
	body, err := report.Compliance(d, sections, now)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeAttachment(w, contentTypeHTML, report.ComplianceFilename(d.Target, now), body)
}

func (a *api) contributorReport(w http.ResponseWriter, r *http.Request) {
	author := strings.TrimSpace(r.URL.Query().Get("author"))
	if author == "" {
		a.writeError(w, &ValidationError{Err: errors.New("author is required")})
		return
	}
	result, err := a.services.AnalyzeAuthor(r.Context(), repoTarget(r), author, nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	book, err := report.ContributorWorkbook(result.Dashboard.Target, result.Rollup, result.Analysis)
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer func() {
		_ = book.Close()
	}()
	buf, err := book.WriteToBuffer()
	if err != nil {
		a.writeError(w, fmt.Errorf("render workbook: %w", err))
		return
	}
	filename := report.ContributorFilename(result.Dashboard.Target, author, a.services.now())
	writeAttachment(w, contentTypeXLSX, filename, buf.Bytes())
}

func (a *api) listProjects(w http.ResponseWriter, r *http.Request) {
	keys, err := a.services.State.Keys(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

type projectResponse struct {
	Key    string              `json:"key"`
	Stored bool                `json:"stored"`
	Record projectstate.Record `json:"record"`
}

func (a *api) getProject(w http.ResponseWriter, r *http.Request) {
	if rest := chi.URLParam(r, "*"); strings.HasSuffix(rest, "/timeline") {
		a.getTimeline(w, r, strings.TrimSuffix(rest, "/timeline"))
		return
	}
	target, err := projectTarget(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	key := target.StateKey()
	record, stored := a.services.State.Load(r.Context(), key)
	writeJSON(w, http.StatusOK, projectResponse{Key: key, Stored: stored, Record: record})
}

func (a *api) getTimeline(w http.ResponseWriter, r *http.Request, branch string) {
	branch = strings.Trim(branch, "/")
	if branch == "" {
		a.writeError(w, &ValidationError{Err: errors.New("branch is required")})
		return
	}
	timeline, err := a.services.Timeline(r.Context(), dashboard.Target{
		Owner:  chi.URLParam(r, "owner"),
		Repo:   chi.URLParam(r, "repo"),
		Branch: branch,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (a *api) putProject(w http.ResponseWriter, r *http.Request) {
	target, err := projectTarget(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	var record projectstate.Record
	if err := decodeBody(r, &record); err != nil {
		a.writeError(w, err)
		return
	}
	key := target.StateKey()
	saved, err := a.services.SaveProject(r.Context(), key, record)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{Key: key, Stored: true, Record: saved})
}

func (a *api) deleteProject(w http.ResponseWriter, r *http.Request) {
	target, err := projectTarget(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.services.State.Delete(r.Context(), target.StateKey()); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return &ValidationError{Err: fmt.Errorf("decode request body: %w", err)}
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var validation *ValidationError
	var providerErr *githubapi.ProviderError
	switch {
	case errors.As(err, &validation), errors.Is(err, githubapi.ErrInvalidRepoURL):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrRepositoryNotFound),
		errors.Is(err, reconcile.ErrBranchNotFound),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, jobs.ErrAuthorNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	var providerErr *githubapi.ProviderError
	if status == http.StatusBadGateway && errors.As(err, &providerErr) {
		message = providerErr.Error()
	}
	if status >= http.StatusInternalServerError {
		a.logger.Warn("api request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode response"}`))
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	//nolint:gosec // Payload is server-generated JSON.
	_, _ = w.Write(payload)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
