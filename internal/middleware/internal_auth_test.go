package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func gateRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sessions", InternalAuth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestInternalAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		secret     string
		header     string
		sendHeader bool
		wantStatus int
	}{
		{name: "match passes through", secret: "s3cret", header: "s3cret", sendHeader: true, wantStatus: http.StatusOK},
		{name: "missing header rejected", secret: "s3cret", sendHeader: false, wantStatus: http.StatusUnauthorized},
		{name: "mismatch rejected", secret: "s3cret", header: "wrong", sendHeader: true, wantStatus: http.StatusUnauthorized},
		{name: "unconfigured secret fails closed", secret: "", header: "anything", sendHeader: true, wantStatus: http.StatusInternalServerError},
		{name: "unconfigured secret with empty header still fails closed", secret: "", sendHeader: false, wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := gateRouter(tc.secret)
			req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
			if tc.sendHeader {
				req.Header.Set(HeaderInternalSecret, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}
