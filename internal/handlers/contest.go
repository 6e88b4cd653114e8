package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rush-contest/apiserver/internal/services"
	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

// maxUploadSize bounds contest document uploads.
const maxUploadSize = 32 << 20

// ContestsHandler serves contest CRUD, registrations and documents.
type ContestsHandler struct {
	contests    *services.ContestService
	eligibility *services.EligibilityService
	accounts    *services.AccountService
	resolver    *services.OrganizerResolver
}

func NewContestsHandler(
	contests *services.ContestService,
	eligibility *services.EligibilityService,
	accounts *services.AccountService,
	resolver *services.OrganizerResolver,
) *ContestsHandler {
	return &ContestsHandler{
		contests:    contests,
		eligibility: eligibility,
		accounts:    accounts,
		resolver:    resolver,
	}
}

// ContestsRouter registers contest routes. Reads are public, registration
// needs a session and writes need admin.
func ContestsRouter(
	r chi.Router,
	contests *services.ContestService,
	eligibility *services.EligibilityService,
	accounts *services.AccountService,
	resolver *services.OrganizerResolver,
	jwtSecret string,
) {
	handler := NewContestsHandler(contests, eligibility, accounts, resolver)

	r.Get("/", handler.List)
	r.Get("/years", handler.BirthYears)
	r.Get("/{contestID}", handler.Get)
	r.Get("/{contestID}/files", handler.ListFiles)
	r.Get("/{contestID}/files/{fileID}", handler.DownloadFile)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(jwtSecret))
		r.Post("/{contestID}/contestants", handler.AddContestant)
		r.Get("/{contestID}/contestants", handler.ListContestants)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(accounts))
			r.Post("/", handler.Create)
			r.Put("/{contestID}", handler.Update)
			r.Delete("/{contestID}", handler.Delete)
			r.Put("/{contestID}/results", handler.SetResults)
			r.Post("/{contestID}/files", handler.UploadFile)
		})
	})
}

type ContestRequest struct {
	Name  string `json:"name"`
	Place string `json:"place"`

	Date     time.Time `json:"date"`
	Deadline time.Time `json:"deadline"`

	LowestYear  int `json:"lowest_year"`
	HighestYear int `json:"highest_year"`

	// Unit is the encoded organizer reference, empty for an
	// individually organized contest.
	Unit string `json:"unit"`
}

func (req *ContestRequest) toContest(resolver *services.OrganizerResolver) (types.Contest, error) {
	contest := types.Contest{
		Name:        strings.TrimSpace(req.Name),
		Place:       strings.TrimSpace(req.Place),
		Date:        req.Date,
		Deadline:    req.Deadline,
		LowestYear:  req.LowestYear,
		HighestYear: req.HighestYear,
	}
	if contest.Name == "" {
		return types.Contest{}, errors.New("name is required")
	}
	if req.Date.IsZero() || req.Deadline.IsZero() {
		return types.Contest{}, errors.New("date and deadline are required")
	}
	if req.LowestYear < 1 || req.HighestYear < req.LowestYear {
		return types.Contest{}, errors.New("invalid birth year range")
	}
	if unit := strings.TrimSpace(req.Unit); unit != "" {
		id, kind, err := resolver.Parse(unit)
		if err != nil {
			return types.Contest{}, err
		}
		contest.Organizer = types.OrganizerRef{Kind: kind, ID: id}
	}
	return contest, nil
}

// List returns all contests.
func (h *ContestsHandler) List(w http.ResponseWriter, r *http.Request) {
	contests, err := h.contests.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contests")
		return
	}
	if contests == nil {
		contests = []types.Contest{}
	}
	writeJSON(w, http.StatusOK, contests)
}

// Get returns one contest with its current submission status.
func (h *ContestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	contest, ok := h.loadContest(w, r)
	if !ok {
		return
	}
	_, status := h.eligibility.CanSubmit(contest, time.Now())
	writeJSON(w, http.StatusOK, ContestResponse{Contest: contest, Submissions: status})
}

type ContestResponse struct {
	types.Contest
	Submissions services.SubmissionStatus `json:"submissions"`
}

// BirthYears returns the selectable birth-year list, newest first.
func (h *ContestsHandler) BirthYears(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.contests.BirthYearOptions(time.Now()))
}

// Create adds a contest.
func (h *ContestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	contest, err := req.toContest(h.resolver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.contests.Create(r.Context(), contest)
	if err != nil {
		writeContestValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update edits a contest.
func (h *ContestsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	contest, err := req.toContest(h.resolver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contest.ID = id

	updated, err := h.contests.Update(r.Context(), contest)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, updated)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "contest not found")
	default:
		writeContestValidationError(w, err)
	}
}

// Delete removes a contest.
func (h *ContestsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.contests.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete contest")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SetResultsRequest struct {
	Results string `json:"results"`
}

// SetResults stores the contest's free-text results.
func (h *ContestsHandler) SetResults(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SetResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.contests.SetResults(r.Context(), id, req.Results); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to set results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "results published"})
}

type ContestantRequest struct {
	FirstName  string       `json:"first_name"`
	LastName   string       `json:"last_name"`
	Gender     types.Gender `json:"gender"`
	SchoolKind string       `json:"school_kind"`
	BirthYear  int          `json:"birth_year"`
}

// AddContestant registers a contestant for the contest on behalf of the
// calling account.
func (h *ContestsHandler) AddContestant(w http.ResponseWriter, r *http.Request) {
	contest, ok := h.loadContest(w, r)
	if !ok {
		return
	}
	account, ok := h.loadCaller(w, r)
	if !ok {
		return
	}

	var req ContestantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "first and last name are required")
		return
	}
	if req.Gender != types.GenderFemale && req.Gender != types.GenderMale {
		writeError(w, http.StatusBadRequest, "invalid gender")
		return
	}

	contestant := types.Contestant{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Gender:     req.Gender,
		SchoolKind: strings.TrimSpace(req.SchoolKind),
		BirthYear:  req.BirthYear,
	}

	created, err := h.eligibility.Register(r.Context(), contest, account, contestant, time.Now())
	var birthYearErr *services.BirthYearError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, created)
	case errors.Is(err, services.ErrContestOver):
		writeError(w, http.StatusConflict, "contest already took place")
	case errors.Is(err, services.ErrDeadlinePassed):
		writeError(w, http.StatusConflict, "submission deadline passed")
	case errors.Is(err, services.ErrDuplicateRegistration):
		writeError(w, http.StatusConflict, "already registered for this contest")
	case errors.As(err, &birthYearErr):
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf(
			"birth year must be between %d and %d", birthYearErr.Lowest, birthYearErr.Highest))
	default:
		writeError(w, http.StatusInternalServerError, "failed to register contestant")
	}
}

// ListContestants returns registrations: all of them for admins, the
// caller's own submissions otherwise.
func (h *ContestsHandler) ListContestants(w http.ResponseWriter, r *http.Request) {
	contest, ok := h.loadContest(w, r)
	if !ok {
		return
	}
	account, ok := h.loadCaller(w, r)
	if !ok {
		return
	}

	var (
		contestants []types.Contestant
		err         error
	)
	if account.Admin {
		contestants, err = h.eligibility.ListByContest(r.Context(), contest.ID)
	} else {
		contestants, err = h.eligibility.ListByModerator(r.Context(), contest.ID, account.ID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contestants")
		return
	}
	if contestants == nil {
		contestants = []types.Contestant{}
	}
	writeJSON(w, http.StatusOK, contestants)
}

// UploadFile attaches a document to the contest.
func (h *ContestsHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	record, err := h.contests.UploadFile(
		r.Context(), id, accountID,
		header.Filename, header.Header.Get("Content-Type"),
		file, header.Size,
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, record)
	case errors.Is(err, services.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "file storage unavailable")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "contest not found")
	default:
		writeError(w, http.StatusInternalServerError, "failed to upload file")
	}
}

// ListFiles returns the contest's document records.
func (h *ContestsHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	files, err := h.contests.ListFiles(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	if files == nil {
		files = []types.ContestFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

// DownloadFile streams a contest document.
func (h *ContestsHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	contestID, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fileID, err := parseIDParam(r, "fileID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, reader, err := h.contests.OpenFile(r.Context(), contestID, fileID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "file storage unavailable")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found")
		return
	default:
		writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer reader.Close()

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Name))
	_, _ = io.Copy(w, reader)
}

func (h *ContestsHandler) loadContest(w http.ResponseWriter, r *http.Request) (types.Contest, bool) {
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return types.Contest{}, false
	}
	contest, err := h.contests.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return types.Contest{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load contest")
		return types.Contest{}, false
	}
	return contest, true
}

func (h *ContestsHandler) loadCaller(w http.ResponseWriter, r *http.Request) (types.Account, bool) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Account{}, false
	}
	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.Account{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return types.Account{}, false
	}
	return account, true
}

func writeContestValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDeadlineAfterDate):
		writeError(w, http.StatusUnprocessableEntity, "deadline must not be after the contest date")
	case errors.Is(err, services.ErrMalformedReference):
		writeError(w, http.StatusBadRequest, "malformed unit reference")
	case errors.Is(err, services.ErrUnknownUnit):
		writeError(w, http.StatusUnprocessableEntity, "unknown unit")
	default:
		writeError(w, http.StatusInternalServerError, "failed to save contest")
	}
}
