package tochka

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

func newTestClient(t *testing.T, token string, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, token, "044525104", "https://example.com/paid", 5*time.Second, logger.NewNop())
}

func customersMux(calls *int32) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/open/v2/customers", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		_, _ = w.Write([]byte(`{"customers":[
			{"customerCode":"p1","customerType":"Personal"},
			{"customerCode":"b1","customerType":"Business"}
		]}`))
	})
	mux.HandleFunc("/open/v2/customers/b1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bankCode") != "044525104" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"merchantId":"m-1","accountId":"a-1"}`))
	})
	return mux
}

func TestNewClient_AddsBearerPrefix(t *testing.T) {
	c := NewClient("https://bank", " abc ", "", "", time.Second, logger.NewNop())
	assert.Equal(t, "Bearer abc", c.token)

	c = NewClient("https://bank", "Bearer abc", "", "", time.Second, logger.NewNop())
	assert.Equal(t, "Bearer abc", c.token)
}

func TestClient_ResolveMerchant_CachesSuccess(t *testing.T) {
	var calls int32
	client := newTestClient(t, "jwt", customersMux(&calls))

	info, err := client.ResolveMerchant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.MerchantInfo{MerchantID: "m-1", AccountID: "a-1"}, info)

	_, err = client.ResolveMerchant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ResolveMerchant_NoBusinessCustomer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open/v2/customers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"customers":[{"customerCode":"p1","customerType":"Personal"}]}`))
	})
	client := newTestClient(t, "jwt", mux)

	_, err := client.ResolveMerchant(context.Background())
	assert.ErrorIs(t, err, models.ErrIrrecoverableSetup)
	assert.Nil(t, client.merchant)
}

func TestClient_ResolveMerchant_IncompleteInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open/v2/customers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"customers":[{"customerCode":"b1","customerType":"Business"}]}`))
	})
	mux.HandleFunc("/open/v2/customers/b1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"merchantId":"m-1"}`))
	})
	client := newTestClient(t, "jwt", mux)

	_, err := client.ResolveMerchant(context.Background())
	assert.ErrorIs(t, err, models.ErrIrrecoverableSetup)
}

func TestClient_RegisterActivateAndStatus(t *testing.T) {
	var activated int64
	mux := http.NewServeMux()
	mux.HandleFunc("/sbp/v2/cashbox_qr_code", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a-1", body["accountId"])
		assert.Equal(t, "m-1", body["merchantId"])
		assert.Equal(t, "https://example.com/paid", body["redirectUrl"])
		_, _ = w.Write([]byte(`{"qrcId":"qr-1","image":"aW1n"}`))
	})
	mux.HandleFunc("/sbp/v2/cashbox_qr_code/qr-1/activate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Amount int64 `json:"amount"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		atomic.StoreInt64(&activated, body.Amount)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/sbp/v2/cashbox_qr_code/qr-1/payment-status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"SUCCESS"}`))
	})
	client := newTestClient(t, "jwt", mux)

	qr, err := client.RegisterQR(context.Background(), &models.MerchantInfo{MerchantID: "m-1", AccountID: "a-1"})
	require.NoError(t, err)
	assert.Equal(t, &models.QRCode{QrcID: "qr-1", Image: "aW1n"}, qr)

	require.NoError(t, client.ActivateQR(context.Background(), "qr-1", 50000))
	assert.Equal(t, int64(50000), atomic.LoadInt64(&activated))

	status, err := client.PaymentStatus(context.Background(), "qr-1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", status)
}

func TestClient_PaymentStatus_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sbp/v2/cashbox_qr_code/qr-1/payment-status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/sbp/v2/cashbox_qr_code/qr-2/payment-status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	client := newTestClient(t, "jwt", mux)

	_, err := client.PaymentStatus(context.Background(), "qr-1")
	assert.ErrorIs(t, err, models.ErrTransientNetwork)

	status, err := client.PaymentStatus(context.Background(), "qr-2")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", status)
}

func TestClient_RegisterQR_MissingID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sbp/v2/cashbox_qr_code", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"image":"aW1n"}`))
	})
	client := newTestClient(t, "jwt", mux)

	_, err := client.RegisterQR(context.Background(), &models.MerchantInfo{MerchantID: "m", AccountID: "a"})
	assert.Error(t, err)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestClient_VerifyToken(t *testing.T) {
	var calls int32
	client := newTestClient(t, signedToken(t, time.Now().Add(time.Hour)), customersMux(&calls))
	require.NoError(t, client.VerifyToken(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_VerifyToken_Expired(t *testing.T) {
	var calls int32
	client := newTestClient(t, signedToken(t, time.Now().Add(-time.Hour)), customersMux(&calls))

	err := client.VerifyToken(context.Background())
	assert.ErrorIs(t, err, models.ErrAuthFailure)
	assert.Zero(t, atomic.LoadInt32(&calls), "expired token is not sent to the bank")
}

func TestClient_VerifyToken_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open/v2/customers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := newTestClient(t, "opaque-token", mux)

	err := client.VerifyToken(context.Background())
	assert.ErrorIs(t, err, models.ErrAuthFailure)
}
