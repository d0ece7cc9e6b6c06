package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

func TestHTTP_AccessDeniedAndNotFoundLookAlike(t *testing.T) {
	denied := HTTP(fmt.Errorf("get patient: %w", tenancy.ErrAccessDenied))
	missing := HTTP(tenancy.ErrNotFound)

	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Equal(t, denied.Code, missing.Code)
	assert.Equal(t, denied.Message, missing.Message)
}

func TestHTTP_PlanDenials(t *testing.T) {
	he := HTTP(plan.ErrTrialExpired)
	assert.Equal(t, http.StatusPaymentRequired, he.Code)
	assert.Equal(t, "trial_expired", he.Message.(map[string]string)["error"])

	he = HTTP(&plan.LimitError{Plan: plan.FreeTrial, Resource: plan.Patients, Limit: 5, Current: 5})
	assert.Equal(t, http.StatusPaymentRequired, he.Code)
	body := he.Message.(map[string]interface{})
	assert.Equal(t, "limit_reached", body["error"])
	assert.Equal(t, 5, body["limit"])
}

func TestHTTP_Validation(t *testing.T) {
	v := NewValidation()
	assert.NoError(t, v.OrNil())
	v.Add("password", "too short")
	v.Add("password", "too common")
	v.Add("email", "required")

	he := HTTP(v)
	assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
	assert.Equal(t, "validation failed: email: required, password: too short; too common", v.Error())
}

func TestHTTP_UnknownIsOpaque(t *testing.T) {
	he := HTTP(errors.New("pq: relation does not exist"))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
	assert.Equal(t, "internal server error", he.Message)
}
