package paymentserver

import (
	"github.com/gin-gonic/gin"

	paymenthttpmapper "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/http/mapper"
	apierrors "github.com/Apurer/payment-reconciler/internal/shared/errors"
)

var responder = apierrors.NewChainedResponder("", paymenthttpmapper.ProblemFor)

// respondProblem maps a ProblemDetail through the shared responder.
func respondProblem(c *gin.Context, problem apierrors.ProblemDetail) {
	responder.Respond(c, problem)
}

// respondError translates application errors into RFC 7807 responses.
func respondError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	responder.RespondError(c, err)
}

func respondBadRequest(c *gin.Context, code, detail string) {
	respondProblem(c, apierrors.ErrBadRequest.WithCode(code).WithDetail(detail))
}
