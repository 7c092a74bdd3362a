package validation_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/core/common/validation"
)

func TestValidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validation Suite")
}

func fieldCodes(err *errors.AppError) map[string]string {
	out := map[string]string{}
	for _, fe := range err.Details.(errors.ValidationErrors).Errors {
		out[fe.Field] = fe.Code
	}
	return out
}

var _ = Describe("ValidationBuilder", func() {
	It("passes a valid form", func() {
		v := validation.NewValidator()
		v.Field("email", "ops@sss.test").Required().Email()
		v.Field("password", "secret1").Required().MinLength(6, errors.ErrCodePasswordTooShort)
		Expect(v.Validate()).To(BeNil())
	})

	It("reports the first failure of every field", func() {
		v := validation.NewValidator()
		v.Field("email", "Ops <ops@sss.test>").Required().Email()
		v.Field("password", "").Required().MinLength(6, errors.ErrCodePasswordTooShort)
		v.Field("confirm_password", "x").Equals("y", "passwords do not match", errors.ErrCodePasswordMismatch)

		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.Code).To(Equal(errors.ErrCodeValidationFailed))
		Expect(fieldCodes(err)).To(Equal(map[string]string{
			"email":            string(errors.ErrCodeInvalidEmail),
			"password":         string(errors.ErrCodeValidationFailed),
			"confirm_password": string(errors.ErrCodePasswordMismatch),
		}))
	})

	It("supports whole-form rules", func() {
		v := validation.NewValidator()
		v.Rule("body", false, "nothing to update", errors.ErrCodeValidationFailed)
		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.Error()).To(Equal("nothing to update"))
	})
})

var _ = Describe("AppError", func() {
	It("matches sentinels by code after copying", func() {
		wrapped := errors.ErrAccessDenied.WithDetails(map[string]string{"module": "reports"})
		Expect(wrapped).To(MatchError(errors.ErrAccessDenied))
		Expect(wrapped).NotTo(MatchError(errors.ErrAdminRequired))
		Expect(errors.ErrAccessDenied.Details).To(BeNil())
	})
})
