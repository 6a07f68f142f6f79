package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/application/command"
	"github.com/ZapTalk/zaptalk.github.io/internal/application/query"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/entitlement"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot returns basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "ZapTalk API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":  "/health",
			"catalog": "/api/v1/catalog",
			"learner": "/api/v1/users/{user}/dashboard",
		},
	})
}

// handleHealth runs every registered check; 503 when one fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleLive reports that the process is up.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// CatalogResponse lists the whole catalog.
type CatalogResponse struct {
	Levels  []catalog.Level  `json:"levels"`
	Modules []catalog.Module `json:"modules"`
	Lessons []catalog.Lesson `json:"lessons"`
	SKUs    []catalog.SKU    `json:"skus"`
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.deps.Accounts.Catalog()
	resp := CatalogResponse{
		Levels:  cat.Levels(),
		Modules: []catalog.Module{},
		Lessons: cat.Lessons(),
		SKUs:    cat.SKUs(),
	}
	for _, l := range resp.Levels {
		resp.Modules = append(resp.Modules, cat.ModulesByLevel(l.Code)...)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, ok := s.deps.Accounts.Catalog().LessonByID(r.PathValue("lesson"))
	if !ok {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "lesson not found")
		return
	}
	writeJSON(w, r, http.StatusOK, lesson)
}

func (s *Server) handleGetSKU(w http.ResponseWriter, r *http.Request) {
	sku, ok := s.deps.Accounts.Catalog().SKUByID(r.PathValue("sku"))
	if !ok {
		s.writeError(w, r, shared.ErrSKUNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, sku)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionResponse is the learner's gamification state.
type ProgressionResponse struct {
	UserID        string                    `json:"userId"`
	XP            int                       `json:"xp"`
	Level         int                       `json:"level"`
	LevelTitle    string                    `json:"levelTitle"`
	Streak        progression.Streak        `json:"streak"`
	Achievements  []progression.Achievement `json:"achievements"`
	ActiveSession *progression.StudySession `json:"activeSession"`
	TodayGoal     *progression.DailyGoal    `json:"todayGoal"`
}

func progressionResponse(a *account.Account) ProgressionResponse {
	e := a.Progression()
	resp := ProgressionResponse{
		UserID:       a.UserID(),
		XP:           e.XP(),
		Level:        e.Level(),
		LevelTitle:   progression.LevelTitle(e.Level()),
		Streak:       e.Streak(),
		Achievements: e.Achievements(),
	}
	if resp.Achievements == nil {
		resp.Achievements = []progression.Achievement{}
	}
	if s, ok := e.ActiveSession(); ok {
		resp.ActiveSession = &s
	}
	if g, ok := e.TodayGoal(); ok {
		resp.TodayGoal = &g
	}
	return resp
}

func (s *Server) handleGetProgression(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		return progressionResponse(a), nil
	})
}

// handleResetProgression wipes gamification state. Entitlements are kept.
func (s *Server) handleResetProgression(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		if err := a.Progression().ResetProgress(ctx); err != nil {
			return nil, err
		}
		return progressionResponse(a), nil
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		return a.Progression().Stats(), nil
	})
}

// AddXPRequest credits XP directly.
type AddXPRequest struct {
	Amount   int    `json:"amount"`
	Reason   string `json:"reason"`
	LessonID string `json:"lessonId"`
}

func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	var req AddXPRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		s.writeError(w, r, invalid("reason is required"))
		return
	}
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		if err := a.Progression().AddXP(ctx, req.Amount, req.Reason, req.LessonID); err != nil {
			return nil, err
		}
		return progressionResponse(a), nil
	})
}

// StartSessionRequest opens a study session for one lesson.
type StartSessionRequest struct {
	LessonID string `json:"lessonId"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.withAccount(w, r, http.StatusCreated, func(ctx context.Context, a *account.Account) (any, error) {
		return a.Progression().StartSession(ctx, req.LessonID)
	})
}

// EndSessionRequest closes the active session.
type EndSessionRequest struct {
	Completed bool `json:"completed"`
	QuizScore *int `json:"quizScore,omitempty"`
}

// EndSessionResponse carries the finished session, or nil when none was
// active, plus the state after rewards.
type EndSessionResponse struct {
	Session     *progression.StudySession `json:"session"`
	Progression ProgressionResponse       `json:"progression"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req EndSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		finished, err := a.Progression().EndSession(ctx, req.Completed, req.QuizScore)
		if err != nil {
			return nil, err
		}
		return EndSessionResponse{Session: finished, Progression: progressionResponse(a)}, nil
	})
}

func (s *Server) handleUpdateStreak(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		if err := a.Progression().UpdateStreak(ctx); err != nil {
			return nil, err
		}
		return a.Progression().Streak(), nil
	})
}

// DailyGoalRequest sets today's targets.
type DailyGoalRequest struct {
	LessonsTarget int `json:"lessonsTarget"`
	MinutesTarget int `json:"minutesTarget"`
}

func (s *Server) handleSetDailyGoal(w http.ResponseWriter, r *http.Request) {
	var req DailyGoalRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		if err := a.Progression().SetDailyGoal(ctx, req.LessonsTarget, req.MinutesTarget); err != nil {
			return nil, err
		}
		return todayGoal(a), nil
	})
}

// DailyProgressRequest overwrites today's counters.
type DailyProgressRequest struct {
	LessonsCompleted int `json:"lessonsCompleted"`
	MinutesCompleted int `json:"minutesCompleted"`
}

func (s *Server) handleUpdateDailyProgress(w http.ResponseWriter, r *http.Request) {
	var req DailyProgressRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		if err := a.Progression().UpdateDailyProgress(ctx, req.LessonsCompleted, req.MinutesCompleted); err != nil {
			return nil, err
		}
		return todayGoal(a), nil
	})
}

func todayGoal(a *account.Account) *progression.DailyGoal {
	if g, ok := a.Progression().TodayGoal(); ok {
		return &g
	}
	return nil
}

// AchievementsResponse lists unlocked achievements and the full catalog.
type AchievementsResponse struct {
	Unlocked  []progression.Achievement           `json:"unlocked"`
	Available []progression.AchievementDefinition `json:"available"`
}

func achievementsResponse(a *account.Account) AchievementsResponse {
	e := a.Progression()
	resp := AchievementsResponse{Unlocked: e.Achievements(), Available: e.AchievementCatalog().All()}
	if resp.Unlocked == nil {
		resp.Unlocked = []progression.Achievement{}
	}
	return resp
}

func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		return achievementsResponse(a), nil
	})
}

func (s *Server) handleCheckAchievements(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		if err := a.Progression().CheckAchievements(ctx); err != nil {
			return nil, err
		}
		return achievementsResponse(a), nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITLEMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		return nonNil(a.Entitlements().Entitlements()), nil
	})
}

// GrantRequest records an entitlement confirmed outside the purchase flow.
type GrantRequest struct {
	SkuID     string             `json:"skuId"`
	Source    entitlement.Source `json:"source"`
	ReceiptID string             `json:"receiptId"`
}

// GrantResponse reports whether the call created the entitlement.
type GrantResponse struct {
	Granted     bool                     `json:"granted"`
	Entitlement *entitlement.Entitlement `json:"entitlement"`
}

// handleGrantEntitlement records a payment settled outside the purchase
// flow, e.g. a reconciled invoice. Operators only.
func (s *Server) handleGrantEntitlement(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if !s.decode(w, r, &req) {
		return
	}
	switch {
	case strings.TrimSpace(req.SkuID) == "":
		s.writeError(w, r, invalid("skuId is required"))
		return
	case req.Source != entitlement.SourceNostrZap && req.Source != entitlement.SourceWeblnInvoice:
		s.writeError(w, r, invalid("source must be nostr-zap or webln-invoice"))
		return
	}

	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		granted, err := a.Entitlements().Grant(ctx, req.SkuID, req.Source, req.ReceiptID)
		if err != nil {
			return nil, err
		}
		if granted {
			s.logger.Info("entitlement granted by operator",
				logger.UserID(a.UserID()),
				logger.SkuID(req.SkuID),
				logger.String("source", string(req.Source)),
			)
		}
		resp := GrantResponse{Granted: granted}
		if e, ok := a.Entitlements().Entitlement(req.SkuID); ok {
			resp.Entitlement = &e
		}
		return resp, nil
	})
}

func (s *Server) handleListProgress(w http.ResponseWriter, r *http.Request) {
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		return a.Entitlements().AllProgress(), nil
	})
}

func (s *Server) handleGetLessonProgress(w http.ResponseWriter, r *http.Request) {
	lessonID := r.PathValue("lesson")
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		p, ok := a.Entitlements().GetProgress(lessonID)
		if !ok {
			return nil, shared.NewDomainError("entitlement", "GetProgress", shared.ErrNotFound, "no progress recorded for lesson")
		}
		return p, nil
	})
}

// RecordProgressRequest stores the latest lesson result.
type RecordProgressRequest struct {
	Completed bool `json:"completed"`
	Score     *int `json:"score,omitempty"`
}

func (s *Server) handleRecordProgress(w http.ResponseWriter, r *http.Request) {
	var req RecordProgressRequest
	if !s.decode(w, r, &req) {
		return
	}
	lessonID := r.PathValue("lesson")
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		if err := a.Entitlements().RecordProgress(ctx, lessonID, req.Completed, req.Score); err != nil {
			return nil, err
		}
		p, _ := a.Entitlements().GetProgress(lessonID)
		return p, nil
	})
}

// AccessResponse answers whether the learner may open a lesson.
type AccessResponse struct {
	LessonID  string `json:"lessonId"`
	HasAccess bool   `json:"hasAccess"`
}

func (s *Server) handleGetAccess(w http.ResponseWriter, r *http.Request) {
	lessonID := r.PathValue("lesson")
	s.withAccount(w, r, http.StatusOK, func(ctx context.Context, a *account.Account) (any, error) {
		return AccessResponse{LessonID: lessonID, HasAccess: a.Entitlements().HasAccess(lessonID)}, nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PURCHASE HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PurchaseRequest buys one SKU. With Async the call returns 202 and the
// outcome is only logged.
type PurchaseRequest struct {
	SkuID string `json:"skuId"`
	Payer string `json:"payer"`
	Async bool   `json:"async"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	cmd := command.PurchaseCommand{UserID: r.PathValue("user"), SkuID: req.SkuID, Payer: req.Payer}

	if req.Async {
		if err := cmd.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		log := s.logger.With(logger.UserID(cmd.UserID), logger.SkuID(cmd.SkuID))
		s.deps.Purchases.HandleAsync(context.WithoutCancel(r.Context()), cmd, func(res *command.PurchaseResult, err error) {
			if err != nil {
				log.Warn("async purchase failed", logger.Err(err))
				return
			}
			log.Info("async purchase finished", logger.Bool("granted", res.Granted))
		})
		writeJSON(w, r, http.StatusAccepted, map[string]string{"skuId": cmd.SkuID, "status": "pending"})
		return
	}

	res, err := s.deps.Purchases.Handle(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Granted {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetRoadmap(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Roadmap.Handle(r.Context(), query.GetRoadmapQuery{UserID: r.PathValue("user")})
	s.respond(w, r, res, err)
}

func (s *Server) handleGetLevelProgress(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.LevelProgress.Handle(r.Context(), query.GetLevelProgressQuery{UserID: r.PathValue("user")})
	s.respond(w, r, res, err)
}

func (s *Server) handleGetWeeklyPlan(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, invalid("offset must be an integer"))
			return
		}
		offset = n
	}
	res, err := s.deps.WeeklyPlan.Handle(r.Context(), query.GetWeeklyPlanQuery{UserID: r.PathValue("user"), Offset: offset})
	s.respond(w, r, res, err)
}

func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Dashboard.Handle(r.Context(), query.GetDashboardQuery{UserID: r.PathValue("user")})
	s.respond(w, r, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// withAccount runs fn under the learner's account lock and writes its result.
func (s *Server) withAccount(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context, a *account.Account) (any, error)) {
	var out any
	err := s.deps.Accounts.With(r.Context(), r.PathValue("user"), func(a *account.Account) error {
		var err error
		out, err = fn(r.Context(), a)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, out)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, data)
}

// decode reads a JSON body and writes a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, shared.WrapError("http", "Decode", shared.ErrInvalidInput, "malformed JSON body", err))
		return false
	}
	return true
}

func invalid(msg string) error {
	return shared.NewDomainError("http", "Validate", shared.ErrInvalidInput, msg)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// writeError maps domain error kinds onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}

	var failure *payment.Failure
	switch {
	case errors.As(err, &failure):
		writeJSONErrorWithDetails(w, r, http.StatusPaymentRequired, "payment_failed", failure.Message, failure.Provider)
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", message)
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", message)
	case errors.Is(err, shared.ErrUnauthorized):
		writeJSONError(w, r, http.StatusUnauthorized, "login_required", message)
	case errors.Is(err, shared.ErrServiceUnavailable):
		writeJSONError(w, r, http.StatusServiceUnavailable, "service_unavailable", message)
	case shared.IsExternalService(err):
		writeJSONError(w, r, http.StatusBadGateway, "payment_provider_error", message)
	case shared.IsStorage(err):
		s.logger.Error("storage failure", logger.Err(err), logger.String("request_id", getRequestID(r.Context())))
		writeJSONError(w, r, http.StatusInternalServerError, "storage_error", "Progress could not be saved, please retry")
	default:
		s.logger.Error("unhandled error", logger.Err(err), logger.String("request_id", getRequestID(r.Context())))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}
