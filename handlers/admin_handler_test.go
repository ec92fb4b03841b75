package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/database"
	"github.com/chainfundit/backend/jobs"
	"github.com/chainfundit/backend/middleware"
	"github.com/chainfundit/backend/models"
)

const testSecret = "test-secret"

type stubModerator struct {
	approveErr error
	approved   int
}

func (s *stubModerator) Approve(_ context.Context, kind models.PayoutKind, id, _ uuid.UUID) (*models.Payout, error) {
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	s.approved++
	return &models.Payout{ID: id, Kind: kind, Status: models.PayoutStatusApproved}, nil
}

func (s *stubModerator) Reject(_ context.Context, kind models.PayoutKind, id uuid.UUID, notes string) (*models.Payout, error) {
	return &models.Payout{ID: id, Kind: kind, Status: models.PayoutStatusRejected, Notes: &notes}, nil
}

func (s *stubModerator) List(context.Context, models.PayoutKind, string) ([]models.Payout, error) {
	return nil, nil
}

type stubProcessor struct {
	processErr error
	processed  int
}

func (s *stubProcessor) Process(_ context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error) {
	s.processed++
	if s.processErr != nil {
		return nil, s.processErr
	}
	return &models.Payout{ID: id, Kind: kind, Status: models.PayoutStatusCompleted}, nil
}

func (s *stubProcessor) Retry(context.Context, models.PayoutKind, uuid.UUID) (*models.Payout, error) {
	return nil, apperrors.ErrInvalidState
}

type stubSweeper struct{ err error }

func (s stubSweeper) Run(context.Context) (jobs.SweepResult, error) {
	if s.err != nil {
		return jobs.SweepResult{}, s.err
	}
	return jobs.SweepResult{Kinds: map[models.PayoutKind]*jobs.SweepStats{
		models.PayoutKindCampaign: {Attempted: 2, Succeeded: 1, Failed: 1},
	}}, nil
}

type stubTwoFactor struct{ validCode string }

func (s stubTwoFactor) Enroll(context.Context, uuid.UUID) (string, string, error) { return "", "", nil }
func (s stubTwoFactor) Confirm(context.Context, uuid.UUID, string) error           { return nil }
func (s stubTwoFactor) Verify(_ context.Context, _ uuid.UUID, code string) error {
	if s.validCode != "" && code != s.validCode {
		return apperrors.ErrInvalidTOTP
	}
	return nil
}

type stubBanks struct{}

func (stubBanks) UpdateBankProfile(context.Context, uuid.UUID, database.BankProfile) error {
	return nil
}
func (stubBanks) SetBankVerification(context.Context, uuid.UUID, bool, bool) error { return nil }

func adminApp(h *AdminHandler) *fiber.App {
	app := fiber.New()
	admin := app.Group("/admin", middleware.Protected(testSecret), middleware.AdminRequired())
	admin.Post("/payouts/sweep", h.SweepPayouts)
	admin.Post("/payouts/:kind/:id/approve", h.ApprovePayout)
	admin.Post("/payouts/:kind/:id/retry", h.RetryPayout)
	return app
}

func call(t *testing.T, app *fiber.App, path, role, body string) (int, map[string]interface{}) {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, uuid.New(), role)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestApproveProcessesImmediately(t *testing.T) {
	moderator := &stubModerator{}
	processor := &stubProcessor{}
	app := adminApp(NewAdminHandler(moderator, processor, stubSweeper{}, stubTwoFactor{validCode: "123456"}, stubBanks{}, zap.NewNop()))

	status, body := call(t, app, "/admin/payouts/campaign/"+uuid.NewString()+"/approve", models.RoleAdmin, `{"totp_code":"123456"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "completed", body["payout"].(map[string]interface{})["status"])
	assert.Equal(t, 1, moderator.approved)
	assert.Equal(t, 1, processor.processed)
}

func TestApproveRequiresValidTOTP(t *testing.T) {
	moderator := &stubModerator{}
	processor := &stubProcessor{}
	app := adminApp(NewAdminHandler(moderator, processor, stubSweeper{}, stubTwoFactor{validCode: "123456"}, stubBanks{}, zap.NewNop()))

	status, _ := call(t, app, "/admin/payouts/campaign/"+uuid.NewString()+"/approve", models.RoleAdmin, `{"totp_code":"654321"}`)

	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Zero(t, moderator.approved)
	assert.Zero(t, processor.processed)
}

func TestApproveOfNonPendingPayoutConflicts(t *testing.T) {
	moderator := &stubModerator{approveErr: apperrors.ErrInvalidState}
	processor := &stubProcessor{}
	app := adminApp(NewAdminHandler(moderator, processor, stubSweeper{}, stubTwoFactor{}, stubBanks{}, zap.NewNop()))

	status, _ := call(t, app, "/admin/payouts/commission/"+uuid.NewString()+"/approve", models.RoleAdmin, "")

	assert.Equal(t, fiber.StatusConflict, status)
	assert.Zero(t, processor.processed)
}

func TestApproveReportsProcessingProblem(t *testing.T) {
	processor := &stubProcessor{processErr: apperrors.NewValidationError("stripe_account_id", "is required")}
	app := adminApp(NewAdminHandler(&stubModerator{}, processor, stubSweeper{}, stubTwoFactor{}, stubBanks{}, zap.NewNop()))

	status, body := call(t, app, "/admin/payouts/campaign/"+uuid.NewString()+"/approve", models.RoleAdmin, "")

	assert.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "approved", body["payout"].(map[string]interface{})["status"])
	assert.Contains(t, body["process_error"], "stripe_account_id")
}

func TestAdminRoutesRejectOtherRoles(t *testing.T) {
	app := adminApp(NewAdminHandler(&stubModerator{}, &stubProcessor{}, stubSweeper{}, stubTwoFactor{}, stubBanks{}, zap.NewNop()))

	status, _ := call(t, app, "/admin/payouts/sweep", models.RoleUser, "")

	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestSweepEndpoint(t *testing.T) {
	app := adminApp(NewAdminHandler(&stubModerator{}, &stubProcessor{}, stubSweeper{}, stubTwoFactor{}, stubBanks{}, zap.NewNop()))

	status, body := call(t, app, "/admin/payouts/sweep", models.RoleAdmin, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["total"].(map[string]interface{})["attempted"])

	busy := adminApp(NewAdminHandler(&stubModerator{}, &stubProcessor{}, stubSweeper{err: apperrors.ErrSweepInProgress}, stubTwoFactor{}, stubBanks{}, zap.NewNop()))
	status, _ = call(t, busy, "/admin/payouts/sweep", models.RoleAdmin, "")
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestBadPayoutKind(t *testing.T) {
	app := adminApp(NewAdminHandler(&stubModerator{}, &stubProcessor{}, stubSweeper{}, stubTwoFactor{}, stubBanks{}, zap.NewNop()))

	status, _ := call(t, app, "/admin/payouts/bonus/"+uuid.NewString()+"/retry", models.RoleAdmin, "")

	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.ErrPayoutNotFound, fiber.StatusNotFound},
		{apperrors.ErrInvalidState, fiber.StatusConflict},
		{apperrors.ErrInsufficientFunds, fiber.StatusUnprocessableEntity},
		{apperrors.NewValidationError("amount", "must be positive"), fiber.StatusUnprocessableEntity},
		{apperrors.ErrInvalidTOTP, fiber.StatusUnauthorized},
		{fiber.NewError(fiber.StatusBadRequest, "bad"), fiber.StatusBadRequest},
		{errors.New("connection refused"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, errorStatus(tc.err), tc.err.Error())
	}
}

func TestEveryErrorUsesOneShape(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	admin := app.Group("/admin", middleware.Protected(testSecret), middleware.AdminRequired())
	h := NewAdminHandler(&stubModerator{}, &stubProcessor{}, stubSweeper{}, stubTwoFactor{}, stubBanks{}, zap.NewNop())
	admin.Post("/users/:userId/bank-verification", h.SetBankVerification)
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("pq: connection reset") })

	status, body := call(t, app, "/admin/users/not-a-uuid/bank-verification", models.RoleAdmin, `{"verified":true}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, map[string]interface{}{"error": "Invalid user ID"}, body)

	status, body = call(t, app, "/admin/users/"+uuid.NewString()+"/bank-verification", models.RoleUser, `{}`)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Contains(t, body, "error")

	req := httptest.NewRequest("POST", "/admin/users/"+uuid.NewString()+"/bank-verification", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"error": "Missing or malformed JWT"}, decodeBody(t, resp.Body))

	req = httptest.NewRequest("POST", "/admin/users/"+uuid.NewString()+"/bank-verification", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"error": "Invalid or expired JWT"}, decodeBody(t, resp.Body))

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"error": "Internal server error"}, decodeBody(t, resp.Body))

	resp, err = app.Test(httptest.NewRequest("GET", "/nowhere", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp.Body), "error")
}

func decodeBody(t *testing.T, r io.ReadCloser) map[string]interface{} {
	t.Helper()
	defer r.Close()
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}
