package httpapi

import (
	"net/http"
	"strings"

	"github.com/meow-stack/meowctl/internal/errors"
)

// statusFor maps an error taxonomy code to an HTTP status: validation
// errors are 400, resolution/not-found errors are 404, everything else
// (transport, execution, timeout, fatal) is 500.
func statusFor(err error) int {
	code := errors.Code(err)
	switch {
	case strings.HasPrefix(code, "VALIDATION_"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "RESOLUTION_"):
		return http.StatusNotFound
	case code == "":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	fail(w, statusFor(err), err)
}
