package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/target/greeter-api/internal/domain/model"
	apperrors "github.com/target/greeter-api/internal/errors"
)

// cookiesField is the multipart file part and JSON field carrying the cookie export.
const cookiesField = "cookies"

// createJobBody is the JSON request shape for job submission.
type createJobBody struct {
	AccountOwner    string          `json:"account_owner"`
	MessageTemplate string          `json:"message_template,omitempty"`
	Headless        *bool           `json:"headless,omitempty"`
	Proxy           string          `json:"proxy,omitempty"`
	Cookies         json.RawMessage `json:"cookies,omitempty"`
	CookiesPath     string          `json:"cookies_path,omitempty"`
}

// parseCreateRequest reads a submission from a JSON or multipart body. The
// returned error is always a validation error.
func parseCreateRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (*model.CreateJobRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return nil, apperrors.Validation("invalid Content-Type header")
	}

	switch mediaType {
	case "multipart/form-data":
		return parseMultipart(r, maxBytes)
	case "", "application/json":
		return parseJSONBody(r)
	default:
		return nil, apperrors.Validationf("unsupported Content-Type %q", mediaType)
	}
}

func parseJSONBody(r *http.Request) (*model.CreateJobRequest, error) {
	var body createJobBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return nil, bodyError(err)
	}

	creds, err := credentialsFrom(jsonCookies(body.Cookies), body.CookiesPath)
	if err != nil {
		return nil, err
	}
	return &model.CreateJobRequest{
		AccountOwner:    body.AccountOwner,
		MessageTemplate: body.MessageTemplate,
		Headless:        body.Headless,
		Proxy:           body.Proxy,
		Credentials:     creds,
	}, nil
}

// jsonCookies accepts the export inline (array or object) or as a JSON string
// holding the file's contents.
func jsonCookies(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}

func parseMultipart(r *http.Request, maxBytes int64) (*model.CreateJobRequest, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, bodyError(err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var upload []byte
	file, _, err := r.FormFile(cookiesField)
	switch {
	case err == nil:
		defer file.Close()
		upload, err = io.ReadAll(file)
		if err != nil {
			return nil, bodyError(err)
		}
	case errors.Is(err, http.ErrMissingFile):
		if v := r.FormValue(cookiesField); v != "" {
			upload = []byte(v)
		}
	default:
		return nil, bodyError(err)
	}

	creds, err := credentialsFrom(upload, r.FormValue("cookies_path"))
	if err != nil {
		return nil, err
	}

	req := &model.CreateJobRequest{
		AccountOwner:    r.FormValue("account_owner"),
		MessageTemplate: r.FormValue("message_template"),
		Proxy:           r.FormValue("proxy"),
		Credentials:     creds,
	}
	if v := strings.TrimSpace(r.FormValue("headless")); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return nil, apperrors.ValidationField("headless", "headless must be true or false")
		}
		req.Headless = &b
	}
	return req, nil
}

func credentialsFrom(inline []byte, path string) (model.SessionCredentials, error) {
	path = strings.TrimSpace(path)
	switch {
	case len(inline) > 0 && path != "":
		return model.SessionCredentials{}, apperrors.ValidationField(cookiesField, "provide either cookies or cookies_path, not both")
	case len(inline) > 0:
		return model.CredentialsFromBytes(inline), nil
	case path != "":
		return model.CredentialsFromFile(path), nil
	default:
		return model.SessionCredentials{}, apperrors.ValidationField(cookiesField, "session cookies are required")
	}
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.Validationf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body")
}
