// Package validate checks form input locally before anything is sent.
package validate

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

const (
	FormRegister    = "register"
	FormLogin       = "login"
	FormApplication = "application"
	FormStatus      = "status"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Messages shown next to a field, keyed by form then field.
var messages = map[string]map[string]string{
	FormRegister: {
		"email":            "Invalid email format",
		"username":         "Username must be at least 3 characters",
		"password":         "Password must be at least 6 characters",
		"confirm_password": "Passwords do not match",
	},
	FormLogin: {
		"username": "Username is required",
		"password": "Password is required",
	},
	FormApplication: {
		"title":       "Title is required",
		"description": "Description is required",
		"photo_url":   "Photo must be an http(s) URL",
		"video_url":   "Video must be an http(s) URL",
	},
	FormStatus: {
		"status": "Status must be approved or rejected",
	},
}

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles the embedded form schemas.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*jsonschema.Schema)}
	for _, form := range []string{FormRegister, FormLogin, FormApplication, FormStatus} {
		data, err := schemaFS.ReadFile("schemas/" + form + ".json")
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", form, err)
		}
		s, err := jsonschema.CompileString("https://reklama.local/schemas/"+form+".json", string(data))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", form, err)
		}
		v.schemas[form] = s
	}
	return v, nil
}

// MustNew is New for package level initialisation; the schemas are embedded so
// a failure is a build defect.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Register checks the sign-up form. confirm is the repeated password.
func (v *Validator) Register(req models.RegisterRequest, confirm string) error {
	fields := v.check(FormRegister, req)
	if confirm != req.Password {
		if fields == nil {
			fields = make(map[string]string)
		}
		if _, ok := fields["password"]; !ok {
			fields["confirm_password"] = messages[FormRegister]["confirm_password"]
		}
	}
	return result("validate.register", fields)
}

func (v *Validator) Login(req models.LoginRequest) error {
	return result("validate.login", v.check(FormLogin, req))
}

func (v *Validator) Application(draft models.ApplicationDraft) error {
	return result("validate.application", v.check(FormApplication, draft))
}

func (v *Validator) Status(status models.Status) error {
	return result("validate.status", v.check(FormStatus, models.StatusUpdate{Status: status}))
}

func result(op string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return apierr.Validation(op, fields)
}

// check validates value against the form schema and returns per-field messages.
func (v *Validator) check(form string, value any) map[string]string {
	schema := v.schemas[form]
	raw, err := json.Marshal(value)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]string{"_": err.Error()}
	}
	// Empty strings count as missing, the way the forms treat them.
	for k, val := range doc {
		if s, ok := val.(string); ok && s == "" {
			delete(doc, k)
		}
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string)
	for _, leaf := range leaves(ve) {
		name := fieldOf(leaf.InstanceLocation)
		if name == "" {
			// Root level: required or additionalProperties.
			for _, req := range schema.Required {
				if _, ok := doc[req]; !ok {
					fields[req] = message(form, req, "is required")
				}
			}
			continue
		}
		if _, seen := fields[name]; !seen {
			fields[name] = message(form, name, leaf.Message)
		}
	}
	if len(fields) == 0 {
		fields["_"] = ve.Message
	}
	return fields
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// fieldOf turns an instance location such as "/title" into "title".
func fieldOf(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if i := strings.IndexByte(loc, '/'); i >= 0 {
		loc = loc[:i]
	}
	return loc
}

func message(form, field, fallback string) string {
	if m, ok := messages[form][field]; ok {
		return m
	}
	return field + " " + fallback
}
