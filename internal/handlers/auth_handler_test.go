package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shipping-metrics-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	phoneTaken    bool
	phoneErr      error
	createErr     error
	metadataErr   error
	grantErr      error
	userByEmail   *services.IdentityUser
	userByEmailEr error
	userByPhone   *services.IdentityUser
	userByPhoneEr error
	sendErr       error

	createCalls   int
	deleteCalls   int
	deletedUserID string
	metadataCalls int
	lastMetadata  map[string]interface{}
	sendCalls     int
}

func (f *fakeIdentity) IsPhoneNumberTaken(_ context.Context, _ string) (bool, error) {
	return f.phoneTaken, f.phoneErr
}

func (f *fakeIdentity) CreateUser(_ context.Context, email, _ string, _ map[string]interface{}) (*services.IdentityUser, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &services.IdentityUser{UserID: "auth0|user-1", Email: email}, nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, userID string) error {
	f.deleteCalls++
	f.deletedUserID = userID
	return nil
}

func (f *fakeIdentity) UpdateUserMetadata(_ context.Context, _ string, metadata map[string]interface{}) error {
	f.metadataCalls++
	f.lastMetadata = metadata
	return f.metadataErr
}

func (f *fakeIdentity) GetUserByEmail(_ context.Context, _ string) (*services.IdentityUser, error) {
	return f.userByEmail, f.userByEmailEr
}

func (f *fakeIdentity) GetUserByPhone(_ context.Context, _ string) (*services.IdentityUser, error) {
	return f.userByPhone, f.userByPhoneEr
}

func (f *fakeIdentity) SendVerificationEmail(_ context.Context, _ string) error {
	f.sendCalls++
	return f.sendErr
}

func (f *fakeIdentity) PasswordGrant(_ context.Context, _, _ string) (*services.TokenResponse, error) {
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	return &services.TokenResponse{AccessToken: "access", IDToken: "id", ExpiresIn: 86400}, nil
}

type fakeDownstream struct {
	clientID    string
	err         error
	createCalls int
	lastPayload services.ClientPayload
}

func (f *fakeDownstream) CreateClient(_ context.Context, payload services.ClientPayload) (string, error) {
	f.createCalls++
	f.lastPayload = payload
	if f.err != nil {
		return "", f.err
	}
	return f.clientID, nil
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	router := gin.New()
	router.POST(path, handler)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func validRegisterRequest() RegisterRequest {
	return RegisterRequest{
		Email:    "Jane.Doe@Example.com",
		Password: "Sup3rSecret!",
		FullName: "Jane Doe",
		Company:  "Acme Logistics",
		Position: "Operations Manager",
		Phone:    "+15551234567",
	}
}

func TestRegisterSuccess(t *testing.T) {
	identity := &fakeIdentity{}
	downstream := &fakeDownstream{clientID: "client-42"}
	h := NewAuthHandler(identity, downstream)

	w := postJSON(t, h.Register, "/register", validRegisterRequest())

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "auth0|user-1", body["userId"])
	assert.Equal(t, "client-42", body["client_id"])

	assert.Equal(t, 1, identity.createCalls)
	assert.Equal(t, 1, downstream.createCalls)
	assert.Zero(t, identity.deleteCalls)

	// Client id is written back into user metadata.
	assert.Equal(t, map[string]interface{}{"client_id": "client-42"}, identity.lastMetadata)

	// Email is normalized before it reaches the downstream payload.
	assert.Equal(t, "jane.doe@example.com", downstream.lastPayload.Contact.Email)
	assert.Equal(t, "Acme Logistics", downstream.lastPayload.Name)
}

func TestRegisterMissingFields(t *testing.T) {
	h := NewAuthHandler(&fakeIdentity{}, &fakeDownstream{})

	w := postJSON(t, h.Register, "/register", map[string]string{"email": "a@b.com"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", decodeBody(t, w)["error"])
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	identity := &fakeIdentity{}
	h := NewAuthHandler(identity, &fakeDownstream{})

	req := validRegisterRequest()
	req.Password = "lowercase1!"
	w := postJSON(t, h.Register, "/register", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "uppercase")
	assert.Zero(t, identity.createCalls)
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	h := NewAuthHandler(&fakeIdentity{}, &fakeDownstream{})

	req := validRegisterRequest()
	req.Email = "not-an-email"
	w := postJSON(t, h.Register, "/register", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid email format", decodeBody(t, w)["error"])
}

func TestRegisterDuplicatePhone(t *testing.T) {
	identity := &fakeIdentity{phoneTaken: true}
	h := NewAuthHandler(identity, &fakeDownstream{})

	w := postJSON(t, h.Register, "/register", validRegisterRequest())

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "This phone number is already registered", decodeBody(t, w)["error"])
	assert.Zero(t, identity.createCalls, "no account may be created for a taken phone")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	identity := &fakeIdentity{createErr: services.ErrConflict}
	h := NewAuthHandler(identity, &fakeDownstream{})

	w := postJSON(t, h.Register, "/register", validRegisterRequest())

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "An account with this email already exists", decodeBody(t, w)["error"])
	assert.Zero(t, identity.deleteCalls, "nothing to roll back when creation never happened")
}

func TestRegisterRollsBackUserOnDownstreamFailure(t *testing.T) {
	identity := &fakeIdentity{}
	downstream := &fakeDownstream{err: errors.New("downstream unavailable")}
	h := NewAuthHandler(identity, downstream)

	w := postJSON(t, h.Register, "/register", validRegisterRequest())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to create client account. Please try again.", decodeBody(t, w)["error"])
	assert.Equal(t, 1, identity.deleteCalls, "identity account must be compensated")
	assert.Equal(t, "auth0|user-1", identity.deletedUserID)
}

func TestRegisterRollsBackUserOnMetadataFailure(t *testing.T) {
	identity := &fakeIdentity{metadataErr: errors.New("provider down")}
	downstream := &fakeDownstream{clientID: "client-42"}
	h := NewAuthHandler(identity, downstream)

	w := postJSON(t, h.Register, "/register", validRegisterRequest())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, identity.deleteCalls)
}

func TestLoginSuccess(t *testing.T) {
	h := NewAuthHandler(&fakeIdentity{}, &fakeDownstream{})

	w := postJSON(t, h.Login, "/login", LoginRequest{Email: "a@b.com", Password: "pw"})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "access", body["accessToken"])
	assert.Equal(t, "id", body["idToken"])
}

func TestLoginBadCredentials(t *testing.T) {
	h := NewAuthHandler(&fakeIdentity{grantErr: errors.New("wrong password")}, &fakeDownstream{})

	w := postJSON(t, h.Login, "/login", LoginRequest{Email: "a@b.com", Password: "pw"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", decodeBody(t, w)["error"])
}

func TestUpdateMetadataPhoneTakeoverGuard(t *testing.T) {
	identity := &fakeIdentity{
		userByPhone: &services.IdentityUser{UserID: "auth0|other"},
	}
	h := NewAuthHandler(identity, &fakeDownstream{})

	w := postJSON(t, h.UpdateMetadata, "/update-metadata", UpdateMetadataRequest{
		UserID:   "auth0|user-1",
		Metadata: map[string]interface{}{"phone": "+15551234567"},
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, identity.metadataCalls)
}

func TestUpdateMetadataSamePhoneOwnerAllowed(t *testing.T) {
	identity := &fakeIdentity{
		userByPhone: &services.IdentityUser{UserID: "auth0|user-1"},
	}
	h := NewAuthHandler(identity, &fakeDownstream{})

	w := postJSON(t, h.UpdateMetadata, "/update-metadata", UpdateMetadataRequest{
		UserID:   "auth0|user-1",
		Metadata: map[string]interface{}{"phone": "+15551234567"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, identity.metadataCalls)
}

func TestResendVerificationUnknownEmail(t *testing.T) {
	identity := &fakeIdentity{userByEmailEr: services.ErrNotFound}
	h := NewAuthHandler(identity, &fakeDownstream{})

	w := postJSON(t, h.ResendVerification, "/resend", ResendVerificationRequest{Email: "a@b.com"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, identity.sendCalls)
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	identity := &fakeIdentity{
		userByEmail: &services.IdentityUser{UserID: "auth0|user-1", EmailVerified: true},
	}
	h := NewAuthHandler(identity, &fakeDownstream{})

	w := postJSON(t, h.ResendVerification, "/resend", ResendVerificationRequest{Email: "a@b.com"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, identity.sendCalls)
}

func TestResendVerificationSends(t *testing.T) {
	identity := &fakeIdentity{
		userByEmail: &services.IdentityUser{UserID: "auth0|user-1"},
	}
	h := NewAuthHandler(identity, &fakeDownstream{})

	w := postJSON(t, h.ResendVerification, "/resend", ResendVerificationRequest{Email: "a@b.com"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, identity.sendCalls)
}
