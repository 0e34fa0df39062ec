package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

type fakeCheckInSvc struct {
	scanErr    error
	confirmErr error

	lastSession models.Session
	lastRaw     string
	lastStation string
	lastID      string
	calls       []string
}

func (f *fakeCheckInSvc) Scan(ctx context.Context, session models.Session, raw, stationID string) (*dto.ScanResult, error) {
	f.calls = append(f.calls, "scan")
	f.lastSession, f.lastRaw, f.lastStation = session, raw, stationID
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &dto.ScanResult{ExtractedID: "abc-123", Attendee: dto.AttendeePreview{ID: "abc-123", DisplayName: "Ana Pérez"}}, nil
}

func (f *fakeCheckInSvc) Confirm(ctx context.Context, session models.Session, attendeeID string) (*dto.ConfirmationResult, error) {
	f.calls = append(f.calls, "confirm")
	f.lastSession, f.lastID = session, attendeeID
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &dto.ConfirmationResult{AttendeeID: attendeeID, AttendanceNumber: 8, ConfirmedAt: time.Now().UTC(), Success: true}, nil
}

func (f *fakeCheckInSvc) ScanAndConfirm(ctx context.Context, session models.Session, raw, stationID string) (*dto.ConfirmationResult, error) {
	f.calls = append(f.calls, "scan+confirm")
	f.lastSession, f.lastRaw, f.lastStation = session, raw, stationID
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &dto.ConfirmationResult{AttendeeID: "abc-123", AttendanceNumber: 1, Success: true}, nil
}

func TestCheckInHandlerScanPassesStationHeader(t *testing.T) {
	svc := &fakeCheckInSvc{}
	h := NewCheckInHandler(svc)

	c, w := newGinContext(http.MethodPost, "/checkin/scan", mustJSON(t, dto.ScanRequest{Payload: `{"id":"abc-123"}`}))
	c.Request.Header.Set(stationHeader, " door-north ")
	withClaims(c, committeeClaims)

	h.Scan(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"scan"}, svc.calls)
	assert.Equal(t, "door-north", svc.lastStation)
	assert.Equal(t, `{"id":"abc-123"}`, svc.lastRaw)
	assert.Equal(t, models.Session{UserID: "door-1", Role: models.RoleCommittee}, svc.lastSession)

	var result dto.ScanResult
	decodeData(t, w, &result)
	assert.Equal(t, "abc-123", result.ExtractedID)
}

func TestCheckInHandlerScanWithConfirm(t *testing.T) {
	svc := &fakeCheckInSvc{}
	h := NewCheckInHandler(svc)

	c, w := newGinContext(http.MethodPost, "/checkin/scan", mustJSON(t, dto.ScanRequest{Payload: "abc-123", Confirm: true}))
	withClaims(c, committeeClaims)

	h.Scan(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"scan+confirm"}, svc.calls)
	var result dto.ConfirmationResult
	decodeData(t, w, &result)
	assert.Equal(t, 1, result.AttendanceNumber)
	assert.True(t, result.Success)
}

func TestCheckInHandlerMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unreadable", appErrors.ErrQRUnreadable, http.StatusUnprocessableEntity, "QR_UNREADABLE"},
		{"missing", appErrors.ErrAttendeeNotFound, http.StatusNotFound, "ATTENDEE_NOT_FOUND"},
		{"throttled", appErrors.ErrScanThrottled, http.StatusTooManyRequests, "SCAN_THROTTLED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewCheckInHandler(&fakeCheckInSvc{scanErr: tc.err})
			c, w := newGinContext(http.MethodPost, "/checkin/scan", mustJSON(t, dto.ScanRequest{Payload: "x"}))
			withClaims(c, committeeClaims)

			h.Scan(c)

			require.Equal(t, tc.status, w.Code)
			env := decodeEnvelope(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestCheckInHandlerScanRequiresPayload(t *testing.T) {
	svc := &fakeCheckInSvc{}
	h := NewCheckInHandler(svc)

	c, w := newGinContext(http.MethodPost, "/checkin/scan", []byte(`{"confirm":true`))
	withClaims(c, committeeClaims)

	h.Scan(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.calls)
}

func TestCheckInHandlerConfirm(t *testing.T) {
	svc := &fakeCheckInSvc{}
	h := NewCheckInHandler(svc)

	c, w := newGinContext(http.MethodPost, "/checkin/abc-123/confirm", nil)
	c.Params = []gin.Param{{Key: "id", Value: "abc-123"}}
	withClaims(c, adminClaims)

	h.Confirm(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", svc.lastID)

	svc.confirmErr = appErrors.ErrNumberingConflict
	c, w = newGinContext(http.MethodPost, "/checkin/abc-123/confirm", nil)
	c.Params = []gin.Param{{Key: "id", Value: "abc-123"}}
	withClaims(c, adminClaims)
	h.Confirm(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}
