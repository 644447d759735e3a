package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,mixedpassword"`
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitnil,min=3,max=20"`
	Email    *string `json:"email" validate:"omitnil,email"`
	Password *string `json:"password" validate:"omitnil,min=8"`
	Avatar   *string `json:"avatar" validate:"omitnil,url"`
	Address  *string `json:"address" validate:"omitnil,max=500"`
	Phone    *string `json:"phone" validate:"omitnil,max=20"`
	Age      *int    `json:"age" validate:"omitnil,min=1,max=150"`
	Gender   *string `json:"gender" validate:"omitnil,oneof=male female other"`
	Bio      *string `json:"bio" validate:"omitnil,max=1000"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user author admin"`
}

type loginResponse struct {
	User models.PublicUser `json:"user"`
	auth.TokenPair
}

type verifyTokenResponse struct {
	Valid  bool    `json:"valid"`
	UserID *string `json:"userId"`
}

type resetTokenResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("mixedpassword", mixedPassword)
	return v
}

// mixedPassword requires a lower case letter, an upper case letter and a digit.
func mixedPassword(fl validator.FieldLevel) bool {
	var lower, upper, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return common.BadRequest("request body is required")
		}
		return common.BadRequest("invalid request body")
	}
	return s.check(dst)
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.Validation(err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return common.Validation(strings.Join(msgs, ", "))
}

func fieldMessage(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", f)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", f)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", f)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, fe.Param())
	case "mixedpassword":
		return fmt.Sprintf("%s must contain an upper case letter, a lower case letter and a digit", f)
	default:
		return fmt.Sprintf("%s is invalid", f)
	}
}
