package proto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Frame is a chat message sent by the client.
type Frame struct {
	Recipient *int64    `json:"recipient" validate:"required,gt=0"`
	Text      *string   `json:"text,omitempty" validate:"required_without=File"`
	File      *FileData `json:"file,omitempty" validate:"required_without=Text"`
}

// FileData is an attachment carried inline as a base64 data URL.
type FileData struct {
	Name string `json:"name" validate:"max=255"`
	Data string `json:"data" validate:"required"`
}

// OnlineUser is one entry of the presence list.
type OnlineUser struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// Presence is pushed to every connection whenever membership changes.
type Presence struct {
	Online []OnlineUser `json:"online"`
}

// Delivery is pushed to the recipient's connections for each stored message.
type Delivery struct {
	Text      *string `json:"text"`
	Sender    int64   `json:"sender"`
	Recipient int64   `json:"recipient"`
	File      *string `json:"file"`
	ID        int64   `json:"id"`
}

// ErrorFrame reports a rejected frame back to the connection that sent it.
type ErrorFrame struct {
	Error *Error `json:"error"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize drops blank text so that whitespace alone does not count as content.
func (f *Frame) Normalize() {
	if f.Text != nil && strings.TrimSpace(*f.Text) == "" {
		f.Text = nil
	}
}

// Validate checks the frame names a recipient and carries text or a file.
func (f *Frame) Validate() error {
	f.Normalize()

	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(lo.Uniq(msgs), "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_without":
		return "text or file is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s is too long", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
