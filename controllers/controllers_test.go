package controllers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"zako_server/services"
)

func TestStatusFor(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"validation":   {&services.Error{Kind: services.KindValidation, Code: services.CodeNameEmpty}, http.StatusBadRequest},
		"method":       {services.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		"unauthorized": {&services.Error{Kind: services.KindUnauthorized, Code: services.CodeUnauthorized}, http.StatusUnauthorized},
		"not found":    {&services.Error{Kind: services.KindNotFound, Code: services.CodeNotFound}, http.StatusNotFound},
		"conflict":     {&services.Error{Kind: services.KindConflict, Code: services.CodeSelfLike}, http.StatusConflict},
		"store":        {&services.Error{Kind: services.KindStore, Code: services.CodeStoreUnavailable}, http.StatusServiceUnavailable},
		"unclassified": {errors.New("boom"), http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(services.AsError(tc.err)))
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodGet, "/api/likes", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"success":false,"code":"method_not_allowed","message":"无效的请求方法."}`, rec.Body.String())
}
