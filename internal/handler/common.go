package handler // handler defines http handlers

import (
	"errors"   // errors provides sentinel values used in getUserID
	"fmt"      // fmt formats validation messages
	"net/http" // HTTP status codes
	"reflect"  // reflect reads json tag names for validation messages
	"strconv"  // strconv converts strings to numeric types
	"strings"  // strings provides trimming helpers
	"time"     // time holds parsed calendar days

	"github.com/go-playground/validator/v10" // validator checks request DTOs
	"github.com/labstack/echo/v4"            // echo defines request context types
	"github.com/sirupsen/logrus"             // logrus records unexpected failures

	"github.com/iliyamo/hotel-reservation/internal/middleware" // context keys set by JWTAuth
	"github.com/iliyamo/hotel-reservation/internal/service"    // error kinds
	"github.com/iliyamo/hotel-reservation/internal/utils"      // roles and date parsing
)

// RequestValidator adapts go-playground/validator to echo.Validator.
// Messages name fields by their json tags.
type RequestValidator struct {
	v *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate returns a 400 echo.HTTPError describing the first failed rule.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s is invalid (%s)", fe.Field(), rule))
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// bindAndValidate decodes the JSON body into dst and runs the validator.
// It writes the 400 response itself and returns false on failure.
func bindAndValidate(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	return true, nil
}

// getUserID extracts the user_id set by JWTAuth and converts it to uint64
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		return t, nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// isStaff reports whether the caller operates the front desk.
func isStaff(c echo.Context) bool {
	role, _ := c.Get(middleware.CtxRole).(string)
	return role == utils.RoleStaff || role == utils.RoleAdmin
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseDateParam parses an optional YYYY-MM-DD query value.
func parseDateParam(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	d, err := utils.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date in YYYY-MM-DD format", name)
	}
	return &d, nil
}

// statusFor maps service error kinds onto HTTP statuses.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case service.KindGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders a service error. Storage and unknown failures are
// logged and reported without internal detail.
func writeError(c echo.Context, log logrus.FieldLogger, err error) error {
	kind := service.KindOf(err)
	status := statusFor(kind)
	body := echo.Map{"error": err.Error(), "kind": kind.String()}
	var se *service.Error
	if errors.As(err, &se) {
		body["error"] = se.Msg
		if kind == service.KindInvalidTransition {
			body["from"] = se.From
			body["to"] = se.To
		}
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
		if status == http.StatusInternalServerError {
			body["error"] = "internal error"
		}
	}
	return c.JSON(status, body)
}
